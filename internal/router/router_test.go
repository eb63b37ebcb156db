package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"marketfeed/internal/market"
)

// recorder counts bootstrap/start invocations and remembers their requests.
type recorder struct {
	mu         sync.Mutex
	bootstraps []Request
	starts     []Request
	cancelled  int
}

func newRecorder() *recorder {
	return &recorder{}
}

func (r *recorder) bootstrap(ctx context.Context, req Request) {
	r.mu.Lock()
	r.bootstraps = append(r.bootstraps, req)
	r.mu.Unlock()
}

func (r *recorder) start(ctx context.Context, req Request) *sync.WaitGroup {
	r.mu.Lock()
	r.starts = append(r.starts, req)
	r.mu.Unlock()

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		r.mu.Lock()
		r.cancelled++
		r.mu.Unlock()
	}()
	return wg
}

func (r *recorder) snapshot() ([]Request, []Request, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.bootstraps...), append([]Request(nil), r.starts...), r.cancelled
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestBurstCoalescesToSingleSwitch(t *testing.T) {
	rec := newRecorder()
	rt := New(32, rec.bootstrap, rec.start, zap.NewNop())

	// Queue the whole fast-click burst before the router runs, so the first
	// cycle sees all of it at once.
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "ADAUSDT", "XRPUSDT"}
	for _, s := range symbols {
		rt.Enqueue(Request{Symbol: s, Timeframe: market.Timeframe1m})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	waitFor(t, func() bool {
		_, starts, _ := rec.snapshot()
		return len(starts) == 1
	})
	// Allow any (incorrect) extra cycles to surface before asserting.
	time.Sleep(50 * time.Millisecond)

	boots, starts, _ := rec.snapshot()
	if len(boots) != 1 || len(starts) != 1 {
		t.Fatalf("burst of %d requests must cost one bootstrap and one start, got %d/%d",
			len(symbols), len(boots), len(starts))
	}
	if starts[0].Symbol != "XRPUSDT" {
		t.Fatalf("coalescing must keep the last request, got %s", starts[0].Symbol)
	}
}

func TestDrainDiscardsQueuedRequests(t *testing.T) {
	rec := newRecorder()
	rt := New(32, rec.bootstrap, rec.start, zap.NewNop())

	// Requests left over from a previous run.
	rt.Enqueue(Request{Symbol: "BTCUSDT", Timeframe: market.Timeframe1m})
	rt.Enqueue(Request{Symbol: "ETHUSDT", Timeframe: market.Timeframe1m})
	rt.Drain()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	if boots, starts, _ := rec.snapshot(); len(boots) != 0 || len(starts) != 0 {
		t.Fatalf("drained requests must not trigger a switch, got %d/%d", len(boots), len(starts))
	}

	// The router still serves fresh requests afterwards.
	rt.Enqueue(Request{Symbol: "SOLUSDT", Timeframe: market.Timeframe1m})
	waitFor(t, func() bool {
		_, starts, _ := rec.snapshot()
		return len(starts) == 1
	})
	if _, starts, _ := rec.snapshot(); starts[0].Symbol != "SOLUSDT" {
		t.Fatalf("unexpected start after drain: %+v", starts[0])
	}
}

func TestRepeatRequestIsNoOp(t *testing.T) {
	rec := newRecorder()
	rt := New(32, rec.bootstrap, rec.start, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	req := Request{Symbol: "BTCUSDT", Timeframe: market.Timeframe1m}
	rt.Enqueue(req)
	waitFor(t, func() bool {
		_, starts, _ := rec.snapshot()
		return len(starts) == 1
	})

	rt.Enqueue(req)
	time.Sleep(50 * time.Millisecond)

	boots, starts, cancelled := rec.snapshot()
	if len(boots) != 1 || len(starts) != 1 || cancelled != 0 {
		t.Fatalf("re-requesting the active key must be a no-op, got boots=%d starts=%d cancelled=%d",
			len(boots), len(starts), cancelled)
	}
}

func TestSwitchStopsPreviousStreamsFirst(t *testing.T) {
	rec := newRecorder()
	rt := New(32, rec.bootstrap, rec.start, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	rt.Enqueue(Request{Symbol: "BTCUSDT", Timeframe: market.Timeframe1m})
	waitFor(t, func() bool {
		_, starts, _ := rec.snapshot()
		return len(starts) == 1
	})

	rt.Enqueue(Request{Symbol: "ETHUSDT", Timeframe: market.Timeframe1m})
	waitFor(t, func() bool {
		_, starts, _ := rec.snapshot()
		return len(starts) == 2
	})

	_, starts, cancelled := rec.snapshot()
	if cancelled != 1 {
		t.Fatalf("previous streams must be cancelled before the switch, got %d", cancelled)
	}
	if starts[1].Symbol != "ETHUSDT" {
		t.Fatalf("unexpected second start: %+v", starts[1])
	}
}

func TestTimeframeChangeAloneTriggersSwitch(t *testing.T) {
	rec := newRecorder()
	rt := New(32, rec.bootstrap, rec.start, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	rt.Enqueue(Request{Symbol: "BTCUSDT", Timeframe: market.Timeframe1m})
	waitFor(t, func() bool {
		_, starts, _ := rec.snapshot()
		return len(starts) == 1
	})

	rt.Enqueue(Request{Symbol: "BTCUSDT", Timeframe: market.Timeframe5m})
	waitFor(t, func() bool {
		_, starts, _ := rec.snapshot()
		return len(starts) == 2
	})

	_, starts, _ := rec.snapshot()
	if starts[1].Timeframe != market.Timeframe5m {
		t.Fatalf("expected 5m restart, got %+v", starts[1])
	}
}
