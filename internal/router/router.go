// Package router serializes (symbol, timeframe) switches: it coalesces
// request bursts, tears down the previous key's streams, runs the REST
// bootstrap, and starts fresh streams for the new key.
package router

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"marketfeed/internal/market"
)

// Request is one (symbol, timeframe) switch demand. Values arrive already
// normalized (symbol uppercase, timeframe validated).
type Request struct {
	Symbol    string
	Timeframe market.Timeframe
}

// Bootstrap loads the REST history and depth snapshot for a key. Failures are
// handled inside (logged, partial data published); live streams start anyway.
type Bootstrap func(ctx context.Context, req Request)

// StartStreams launches the per-symbol stream supervisors under ctx and
// returns a WaitGroup that drains once they have all exited.
type StartStreams func(ctx context.Context, req Request) *sync.WaitGroup

// Router drains its request queue one cycle at a time. Rapid UI-driven
// bursts coalesce into the final request, so N queued switches cost exactly
// one teardown + bootstrap + restart.
type Router struct {
	requests  chan Request
	bootstrap Bootstrap
	start     StartStreams
	log       *zap.Logger
}

func New(queueSize int, bootstrap Bootstrap, start StartStreams, log *zap.Logger) *Router {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Router{
		requests:  make(chan Request, queueSize),
		bootstrap: bootstrap,
		start:     start,
		log:       log,
	}
}

// Enqueue queues a switch request without blocking the caller. When the queue
// is full the request is dropped; the burst already in the queue ends in a
// coalesced switch and the caller's state holders retain the target value.
func (r *Router) Enqueue(req Request) {
	select {
	case r.requests <- req:
	default:
		r.log.Warn("router queue full, dropping request",
			zap.String("symbol", req.Symbol),
			zap.String("timeframe", string(req.Timeframe)))
	}
}

// Drain discards every queued request. Called before Run on an engine
// restart so requests from the previous run cannot trigger a switch.
func (r *Router) Drain() {
	for {
		select {
		case <-r.requests:
		default:
			return
		}
	}
}

// Run processes switch requests until ctx is cancelled, then stops the active
// streams and waits for them to exit.
func (r *Router) Run(ctx context.Context) {
	var (
		active       Request
		hasActive    bool
		cancelActive context.CancelFunc
		activeWG     *sync.WaitGroup
	)
	stopActive := func() {
		if cancelActive != nil {
			cancelActive()
			activeWG.Wait()
			cancelActive = nil
			activeWG = nil
		}
	}
	defer stopActive()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.requests:
			// Coalesce the burst: drain everything queued and keep the last.
			drained := 0
			for {
				select {
				case next := <-r.requests:
					req = next
					drained++
					continue
				default:
				}
				break
			}
			if drained > 0 {
				r.log.Info("coalesced queued switch requests",
					zap.Int("dropped", drained),
					zap.String("symbol", req.Symbol),
					zap.String("timeframe", string(req.Timeframe)))
			}
			if hasActive && req == active {
				continue
			}

			r.log.Info("switching streams",
				zap.String("symbol", req.Symbol),
				zap.String("timeframe", string(req.Timeframe)))
			stopActive()
			r.bootstrap(ctx, req)
			streamCtx, cancel := context.WithCancel(ctx)
			cancelActive = cancel
			activeWG = r.start(streamCtx, req)
			active = req
			hasActive = true
		}
	}
}
