// Package engine exposes the market-data ingestion engine: the one component
// collaborators see. It owns the cache, the order-book replica, the symbol
// router, and the always-on ticker stream, and republishes every accepted
// update as a normalized event.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"marketfeed/config"
	"marketfeed/internal/book"
	"marketfeed/internal/cache"
	"marketfeed/internal/market"
	"marketfeed/internal/router"
	"marketfeed/internal/stream"
	"marketfeed/pkg/binance"
)

// Engine is safe for concurrent use: its public methods may be called from
// any goroutine while all book/cache mutation happens on the single internal
// consume loop.
type Engine struct {
	cfg            config.EngineConfig
	wsURL          string
	reconnectDelay time.Duration
	log            *zap.Logger

	rest      *binance.RESTClient
	cache     *cache.Cache
	replica   *book.Replica
	bus       *Bus
	symbol    *SymbolState
	timeframe *TimeframeState
	rt        *router.Router
	msgs      chan stream.Message

	tickerLimiter *rate.Limiter
	depthLimiter  *rate.Limiter

	// switchMu keeps a state-holder update and its router enqueue atomic, so
	// the last request the router coalesces to always matches the holders.
	switchMu sync.Mutex

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
}

// New wires an engine from configuration. An invalid initial timeframe falls
// back to 1m with a warning; SetTimeframe rejects invalid values outright.
func New(cfg *config.Config, log *zap.Logger) *Engine {
	ec := cfg.Engine
	tf, err := market.ParseTimeframe(ec.InitialTimeframe)
	if err != nil {
		log.Warn("invalid initial timeframe, falling back to 1m",
			zap.String("timeframe", ec.InitialTimeframe))
		tf = market.Timeframe1m
	}

	e := &Engine{
		cfg:            ec,
		wsURL:          cfg.Binance.WS.URL,
		reconnectDelay: cfg.Binance.WS.ReconnectDelay,
		log:            log,
		rest:           binance.NewRESTClient(cfg.Binance.REST.BaseURL, cfg.Binance.REST.Timeout),
		cache:          cache.New(ec.MaxCandles, ec.MaxTrades),
		replica:        book.NewReplica(log),
		bus:            NewBus(ec.EventBuffer, log),
		symbol:         NewSymbolState(ec.InitialSymbol),
		timeframe:      NewTimeframeState(tf),
		msgs:           make(chan stream.Message, queueSize(ec.QueueSize)),
		tickerLimiter:  rate.NewLimiter(rate.Every(intervalOr(ec.TickerInterval, 400*time.Millisecond)), 1),
		depthLimiter:   rate.NewLimiter(rate.Every(intervalOr(ec.DepthInterval, 100*time.Millisecond)), 1),
	}
	e.rt = router.New(queueSize(ec.QueueSize), e.bootstrap, e.startStreams, log)
	return e
}

func queueSize(n int) int {
	if n <= 0 {
		return 1024
	}
	return n
}

func intervalOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func drainMessages(ch chan stream.Message) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// Start launches the background context: the consume loop, the symbol router,
// and the symbol-independent watch-list ticker stream. It is idempotent.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	wg := &sync.WaitGroup{}
	e.wg = wg
	e.mu.Unlock()

	// Anything still queued belongs to a previous run.
	drainMessages(e.msgs)
	e.rt.Drain()

	symbol := e.symbol.Get()
	tf := e.timeframe.Get()
	e.log.Info("engine starting",
		zap.String("symbol", symbol),
		zap.String("timeframe", string(tf)))
	e.bus.Publish(market.StatusEvent{Text: "connecting"})
	e.bus.Publish(market.SymbolChanged{Symbol: symbol})
	e.bus.Publish(market.TimeframeChanged{Timeframe: tf})

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.consume(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.rt.Run(ctx)
	}()

	tickers := stream.NewSupervisor(
		"tickers",
		e.wsURL+"/!ticker@arr",
		stream.TickerHandler(e.msgs, e.cfg.Watchlist, e.log),
		e.statusFn(ctx),
		e.reconnectDelay,
		e.log,
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		tickers.Run(ctx)
	}()

	e.rt.Enqueue(router.Request{Symbol: symbol, Timeframe: tf})
	return nil
}

// Stop cancels everything and waits, bounded by the configured timeout, for
// the background context to quiesce. It is idempotent and safe to call
// multiple times.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	cancel := e.cancel
	wg := e.wg
	e.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timeout := intervalOr(e.cfg.StopTimeout, 5*time.Second)
	select {
	case <-done:
	case <-time.After(timeout):
		e.log.Warn("stop timed out waiting for background tasks", zap.Duration("timeout", timeout))
	}

	e.bus.Publish(market.StatusEvent{Text: "disconnected"})
	e.log.Info("engine stopped")
}

// SetSymbol switches the active symbol. A value equal to the current one
// (after uppercase normalization) is a no-op. The change notification is
// emitted immediately; the new symbol's data follows once the router
// completes the switch.
func (e *Engine) SetSymbol(symbol string) {
	e.switchMu.Lock()
	defer e.switchMu.Unlock()

	sym, changed := e.symbol.Set(symbol)
	if !changed {
		return
	}
	e.log.Info("active symbol changed", zap.String("symbol", sym))
	e.bus.Publish(market.SymbolChanged{Symbol: sym})
	e.rt.Enqueue(router.Request{Symbol: sym, Timeframe: e.timeframe.Get()})
}

// SetTimeframe switches the active timeframe. An unsupported value is
// rejected synchronously; an unchanged one (after lowercase normalization)
// is a no-op.
func (e *Engine) SetTimeframe(timeframe string) error {
	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return fmt.Errorf("set timeframe: %w", err)
	}

	e.switchMu.Lock()
	defer e.switchMu.Unlock()

	tf, changed := e.timeframe.Set(tf)
	if !changed {
		return nil
	}
	e.log.Info("active timeframe changed", zap.String("timeframe", string(tf)))
	e.bus.Publish(market.TimeframeChanged{Timeframe: tf})
	e.rt.Enqueue(router.Request{Symbol: e.symbol.Get(), Timeframe: tf})
	return nil
}

// Subscribe registers an event consumer.
func (e *Engine) Subscribe() (uuid.UUID, <-chan market.Event) { return e.bus.Subscribe() }

// Unsubscribe removes an event consumer and closes its channel.
func (e *Engine) Unsubscribe(id uuid.UUID) { e.bus.Unsubscribe(id) }

// ActiveSymbol returns the current symbol.
func (e *Engine) ActiveSymbol() string { return e.symbol.Get() }

// ActiveTimeframe returns the current timeframe.
func (e *Engine) ActiveTimeframe() market.Timeframe { return e.timeframe.Get() }

// Candles returns the cached candle buffer for a key, oldest first.
func (e *Engine) Candles(symbol string, tf market.Timeframe) []market.Candle {
	return e.cache.Candles(symbol, tf)
}

// Trades returns the cached trade buffer for a symbol, oldest first.
func (e *Engine) Trades(symbol string) []market.Trade { return e.cache.Trades(symbol) }

// Depth returns the latest reconciled order-book view for a symbol.
func (e *Engine) Depth(symbol string) (market.Depth, bool) { return e.cache.Depth(symbol) }

// TopLevels returns the best n levels per side of the latest reconciled book,
// bids descending and asks ascending.
func (e *Engine) TopLevels(symbol string, n int) (bids, asks []market.Level) {
	d, ok := e.cache.Depth(symbol)
	if !ok {
		return nil, nil
	}
	return d.TopLevels(n)
}

// BestBid returns the highest resting bid for a symbol, if any.
func (e *Engine) BestBid(symbol string) (market.Level, bool) {
	d, ok := e.cache.Depth(symbol)
	if !ok {
		return market.Level{}, false
	}
	return d.BestBid()
}

// BestAsk returns the lowest resting ask for a symbol, if any.
func (e *Engine) BestAsk(symbol string) (market.Level, bool) {
	d, ok := e.cache.Depth(symbol)
	if !ok {
		return market.Level{}, false
	}
	return d.BestAsk()
}

// consume is the single loop that applies typed messages to the book and
// cache and republishes them as events. Nothing else mutates either.
func (e *Engine) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.msgs:
			e.apply(ctx, msg)
		}
	}
}

func (e *Engine) apply(ctx context.Context, msg stream.Message) {
	switch m := msg.(type) {
	case stream.TradeMessage:
		e.cache.AppendTrade(m.Trade.Symbol, m.Trade)
		e.bus.Publish(market.TradeEvent{Trade: m.Trade})

	case stream.CandleMessage:
		e.cache.AppendCandle(m.Symbol, m.Timeframe, m.Candle, m.Closed)
		e.bus.Publish(market.CandleUpdate{
			Symbol:    m.Symbol,
			Timeframe: m.Timeframe,
			Candle:    m.Candle,
			Closed:    m.Closed,
		})

	case stream.HistoryMessage:
		e.cache.SetHistory(m.Symbol, m.Timeframe, m.Candles)
		e.bus.Publish(market.CandleHistory{
			Symbol:    m.Symbol,
			Timeframe: m.Timeframe,
			Candles:   m.Candles,
		})

	case stream.BookResetMessage:
		if m.Symbol != e.symbol.Get() {
			return
		}
		e.replica.Reset(m.Symbol)

	case stream.DepthSnapshotMessage:
		// A bootstrap or resync snapshot can race a symbol switch; one for
		// anything but the active symbol must never touch the replica.
		if m.Symbol != e.symbol.Get() {
			e.log.Debug("dropping depth snapshot for inactive symbol",
				zap.String("symbol", m.Symbol))
			return
		}
		e.replica.ApplySnapshot(m.Symbol, m.Depth)
		reconciled := e.replica.Snapshot()
		e.cache.SetDepth(m.Symbol, reconciled)
		e.bus.Publish(market.DepthSnapshotEvent{
			Symbol:       m.Symbol,
			Bids:         reconciled.Bids,
			Asks:         reconciled.Asks,
			LastUpdateID: reconciled.LastUpdateID,
		})

	case stream.DepthDiffMessage:
		if m.Symbol != e.symbol.Get() {
			return
		}
		switch e.replica.ApplyDiff(m.Symbol, m.FirstID, m.LastID, m.Bids, m.Asks) {
		case book.DiffApplied:
			e.cache.SetDepth(m.Symbol, e.replica.Snapshot())
			if e.depthLimiter.Allow() {
				e.bus.Publish(market.DepthUpdateEvent{
					Symbol:       m.Symbol,
					Bids:         m.Bids,
					Asks:         m.Asks,
					LastUpdateID: m.LastID,
				})
			}
		case book.DiffGap:
			// The replica is now resyncing and discards further diffs until
			// the fresh snapshot lands; the refetch must not block this loop.
			go e.resyncDepth(ctx, m.Symbol)
		case book.DiffStale, book.DiffDiscarded:
			// Duplicate or superseded frame; nothing to do.
		}

	case stream.TickersMessage:
		if e.tickerLimiter.Allow() {
			e.bus.Publish(market.TickersEvent{Tickers: m.Tickers})
		}

	case stream.StatusMessage:
		e.bus.Publish(market.StatusEvent{Text: m.Text})
	}
}

// bootstrap runs the REST phase of a symbol/timeframe switch: candle history
// and a depth snapshot. Failures are logged and do not block the live
// streams; history then simply arrives late or incomplete.
func (e *Engine) bootstrap(ctx context.Context, req router.Request) {
	e.send(ctx, stream.BookResetMessage{Symbol: req.Symbol})

	history, err := e.rest.GetKlineHistory(ctx, req.Symbol, req.Timeframe, e.cfg.HistoryLimit)
	if err != nil {
		e.log.Warn("history bootstrap failed, starting streams without it",
			zap.String("symbol", req.Symbol),
			zap.String("timeframe", string(req.Timeframe)),
			zap.Error(err))
		e.send(ctx, stream.StatusMessage{Text: "error: history load failed"})
	}
	if len(history) > 0 {
		e.send(ctx, stream.HistoryMessage{
			Symbol:    req.Symbol,
			Timeframe: req.Timeframe,
			Candles:   history,
		})
		e.log.Info("history loaded",
			zap.String("symbol", req.Symbol),
			zap.String("timeframe", string(req.Timeframe)),
			zap.Int("candles", len(history)))
	}

	depth, err := e.rest.GetDepth(ctx, req.Symbol, e.cfg.DepthLimit)
	if err != nil {
		e.log.Warn("depth bootstrap failed, starting streams without it",
			zap.String("symbol", req.Symbol), zap.Error(err))
		e.send(ctx, stream.StatusMessage{Text: "error: depth snapshot failed"})
		return
	}
	e.send(ctx, stream.DepthSnapshotMessage{Symbol: req.Symbol, Depth: depth})
}

// startStreams launches the per-symbol supervisors (trade, kline, depth)
// scoped to the request's key. The ticker stream is symbol-independent and
// is managed by Start, never by the router.
func (e *Engine) startStreams(ctx context.Context, req router.Request) *sync.WaitGroup {
	lower := strings.ToLower(req.Symbol)
	status := e.statusFn(ctx)
	supervisors := []*stream.Supervisor{
		stream.NewSupervisor("trade",
			fmt.Sprintf("%s/%s@trade", e.wsURL, lower),
			stream.TradeHandler(e.msgs, e.log),
			status, e.reconnectDelay, e.log),
		stream.NewSupervisor("kline",
			fmt.Sprintf("%s/%s@kline_%s", e.wsURL, lower, req.Timeframe),
			stream.KlineHandler(e.msgs, req.Timeframe, e.log),
			status, e.reconnectDelay, e.log),
		stream.NewSupervisor("depth",
			fmt.Sprintf("%s/%s@depth@100ms", e.wsURL, lower),
			stream.DepthHandler(e.msgs, e.log),
			status, e.reconnectDelay, e.log),
	}

	wg := &sync.WaitGroup{}
	for _, s := range supervisors {
		wg.Add(1)
		go func(s *stream.Supervisor) {
			defer wg.Done()
			s.Run(ctx)
		}(s)
	}
	return wg
}

// resyncDepth refetches the depth snapshot after a sequence gap. It retries
// with a fixed delay until the snapshot lands, the symbol changes, or the
// engine stops; the replica keeps its last known-good state meanwhile.
func (e *Engine) resyncDepth(ctx context.Context, symbol string) {
	for attempt := 1; ; attempt++ {
		depth, err := e.rest.GetDepth(ctx, symbol, e.cfg.DepthLimit)
		if err == nil {
			if e.symbol.Get() == symbol {
				e.send(ctx, stream.DepthSnapshotMessage{Symbol: symbol, Depth: depth})
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		e.log.Warn("depth resync failed, will retry",
			zap.String("symbol", symbol),
			zap.Int("attempt", attempt),
			zap.Error(err))

		t := time.NewTimer(intervalOr(e.reconnectDelay, time.Second))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if e.symbol.Get() != symbol {
			return
		}
	}
}

// statusFn adapts the supervisors' lifecycle callback onto the message queue.
func (e *Engine) statusFn(ctx context.Context) func(string) {
	return func(text string) {
		e.send(ctx, stream.StatusMessage{Text: text})
	}
}

// send forwards a message to the consume loop without ever blocking a
// background task on a full queue.
func (e *Engine) send(ctx context.Context, m stream.Message) {
	if ctx.Err() != nil {
		return
	}
	select {
	case e.msgs <- m:
	default:
		e.log.Warn("consume queue full, dropping internal message")
	}
}
