// Package book maintains a local order-book replica for the active symbol and
// reconciles it against the upstream snapshot + diff-stream protocol.
package book

import (
	"sort"

	"go.uber.org/zap"

	"marketfeed/internal/market"
)

// SyncState tracks the replica against the upstream diff stream.
//
// Lifecycle: Empty -> Snapshotted -> Synced, with a detour through Resyncing
// whenever a sequence gap is detected, until the next snapshot lands.
type SyncState int

const (
	StateEmpty SyncState = iota
	StateSnapshotted
	StateSynced
	StateResyncing
)

func (s SyncState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateSnapshotted:
		return "snapshotted"
	case StateSynced:
		return "synced"
	case StateResyncing:
		return "resyncing"
	default:
		return "unknown"
	}
}

// DiffOutcome is the result of applying one diff frame to the replica.
type DiffOutcome int

const (
	// DiffApplied: the frame was contiguous and its changes are now visible.
	DiffApplied DiffOutcome = iota
	// DiffStale: the frame's cursor is not newer than the replica's; dropped.
	DiffStale
	// DiffGap: at least one frame was missed; the frame was dropped and the
	// replica entered Resyncing. The caller must trigger a snapshot refetch.
	DiffGap
	// DiffDiscarded: the replica is awaiting a snapshot (Empty or Resyncing);
	// the frame was dropped and no further action is needed.
	DiffDiscarded
)

// Replica keeps live bid/ask price->size maps for one symbol at a time plus
// the monotonic update cursor. It is mutated from a single goroutine (the
// engine's consume loop) and therefore carries no internal locking.
type Replica struct {
	symbol       string
	bids         map[float64]float64
	asks         map[float64]float64
	lastUpdateID int64
	state        SyncState
	log          *zap.Logger
}

func NewReplica(log *zap.Logger) *Replica {
	return &Replica{
		bids:  make(map[float64]float64),
		asks:  make(map[float64]float64),
		state: StateEmpty,
		log:   log,
	}
}

// Reset drops all state ahead of a symbol switch. Diff frames arriving before
// the new symbol's snapshot are discarded (or, for the very first one, treated
// as a gap so a resync is triggered if the bootstrap snapshot never landed).
func (r *Replica) Reset(symbol string) {
	r.symbol = symbol
	r.bids = make(map[float64]float64)
	r.asks = make(map[float64]float64)
	r.lastUpdateID = 0
	r.state = StateEmpty
}

// ApplySnapshot replaces both sides wholesale. Entries with size <= 0 are
// dropped. The snapshot is authoritative: it always supersedes whatever
// incremental state accumulated before it.
func (r *Replica) ApplySnapshot(symbol string, d market.Depth) {
	r.symbol = symbol
	r.bids = make(map[float64]float64, len(d.Bids))
	r.asks = make(map[float64]float64, len(d.Asks))
	for _, lv := range d.Bids {
		if lv.Size > 0 {
			r.bids[lv.Price] = lv.Size
		}
	}
	for _, lv := range d.Asks {
		if lv.Size > 0 {
			r.asks[lv.Price] = lv.Size
		}
	}
	r.lastUpdateID = d.LastUpdateID
	r.state = StateSnapshotted
	r.log.Info("depth snapshot applied",
		zap.String("symbol", symbol),
		zap.Int("bids", len(r.bids)),
		zap.Int("asks", len(r.asks)),
		zap.Int64("last_update_id", d.LastUpdateID))
}

// ApplyDiff applies one diff frame carrying the [firstID, lastID] cursor range
// and the changed levels (size 0 deletes the price, size > 0 upserts it).
//
// Contiguity rule: the frame is applied only when firstID <= lastUpdateID+1
// and lastID > lastUpdateID. A stale frame (lastID <= lastUpdateID) is a
// duplicate and is dropped silently; a gapped frame (firstID > lastUpdateID+1)
// is dropped and flips the replica into Resyncing.
func (r *Replica) ApplyDiff(symbol string, firstID, lastID int64, bids, asks []market.Level) DiffOutcome {
	if symbol != r.symbol || r.state == StateEmpty {
		// No snapshot for this symbol yet; make the caller fetch one.
		if r.state != StateResyncing {
			r.symbol = symbol
			r.state = StateResyncing
			return DiffGap
		}
		return DiffDiscarded
	}
	if r.state == StateResyncing {
		// A snapshot is already on its way and will supersede this frame.
		return DiffDiscarded
	}
	if lastID <= r.lastUpdateID {
		return DiffStale
	}
	if firstID > r.lastUpdateID+1 {
		r.log.Warn("depth sequence gap, resync required",
			zap.String("symbol", symbol),
			zap.Int64("first_id", firstID),
			zap.Int64("last_known", r.lastUpdateID))
		r.state = StateResyncing
		return DiffGap
	}

	applyChanges(r.bids, bids)
	applyChanges(r.asks, asks)
	r.lastUpdateID = lastID
	r.state = StateSynced
	return DiffApplied
}

func applyChanges(side map[float64]float64, changes []market.Level) {
	for _, lv := range changes {
		if lv.Size <= 0 {
			delete(side, lv.Price)
		} else {
			side[lv.Price] = lv.Size
		}
	}
}

// Symbol returns the symbol the replica currently tracks.
func (r *Replica) Symbol() string { return r.symbol }

// State returns the current sync state.
func (r *Replica) State() SyncState { return r.state }

// LastUpdateID returns the highest applied update cursor.
func (r *Replica) LastUpdateID() int64 { return r.lastUpdateID }

// Snapshot returns the full reconciled book, both sides sorted, together with
// the current cursor. The slices are fresh copies safe to hand to consumers.
func (r *Replica) Snapshot() market.Depth {
	return market.Depth{
		Bids:         sortedSide(r.bids, true),
		Asks:         sortedSide(r.asks, false),
		LastUpdateID: r.lastUpdateID,
	}
}

func sortedSide(side map[float64]float64, descending bool) []market.Level {
	out := make([]market.Level, 0, len(side))
	for p, s := range side {
		out = append(out, market.Level{Price: p, Size: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}
