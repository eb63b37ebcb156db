package market

// Event is a normalized notification published by the engine to consumers.
// Payloads are immutable once published; consumers must not mutate slices.
type Event interface {
	isEvent()
}

// SymbolChanged is emitted immediately when the active symbol changes.
// The data for the new symbol follows asynchronously.
type SymbolChanged struct {
	Symbol string
}

// TimeframeChanged is emitted immediately when the active timeframe changes.
type TimeframeChanged struct {
	Timeframe Timeframe
}

// CandleHistory carries a full candle history replacement, emitted after a
// symbol/timeframe switch completes its REST bootstrap.
type CandleHistory struct {
	Symbol    string
	Timeframe Timeframe
	Candles   []Candle
}

// CandleUpdate is an incremental candle event: an update of the forming
// candle (Closed=false) or the definitive close of a bucket (Closed=true).
type CandleUpdate struct {
	Symbol    string
	Timeframe Timeframe
	Candle    Candle
	Closed    bool
}

// TradeEvent carries one executed trade.
type TradeEvent struct {
	Trade Trade
}

// DepthSnapshotEvent carries a full order-book replacement, emitted on the
// initial subscription and after every resync.
type DepthSnapshotEvent struct {
	Symbol       string
	Bids         []Level
	Asks         []Level
	LastUpdateID int64
}

// DepthUpdateEvent carries only the levels changed since the previous event,
// plus the new update cursor. A size of 0 means the level was removed.
type DepthUpdateEvent struct {
	Symbol       string
	Bids         []Level
	Asks         []Level
	LastUpdateID int64
}

// TickersEvent carries the latest 24h summaries for the watch-list.
type TickersEvent struct {
	Tickers []Ticker
}

// StatusEvent reports connection lifecycle transitions
// (connecting/connected/reconnecting/disconnected/error texts).
type StatusEvent struct {
	Text string
}

func (SymbolChanged) isEvent()      {}
func (TimeframeChanged) isEvent()   {}
func (CandleHistory) isEvent()      {}
func (CandleUpdate) isEvent()       {}
func (TradeEvent) isEvent()         {}
func (DepthSnapshotEvent) isEvent() {}
func (DepthUpdateEvent) isEvent()   {}
func (TickersEvent) isEvent()       {}
func (StatusEvent) isEvent()        {}
