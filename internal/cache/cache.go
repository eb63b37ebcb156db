// Package cache holds bounded in-memory buffers of recent market data.
// Buffers are rings: oldest entries are silently dropped on overflow.
package cache

import (
	"strings"
	"sync"

	"marketfeed/internal/market"
)

// CandleKey identifies a candle buffer. Symbols are stored uppercase.
type CandleKey struct {
	Symbol    string
	Timeframe market.Timeframe
}

// Cache is pure state: no I/O, no blocking. It is written from the engine's
// consume loop and read from caller goroutines, so access is mutex-guarded.
type Cache struct {
	mu         sync.RWMutex
	maxCandles int
	maxTrades  int
	candles    map[CandleKey][]market.Candle
	trades     map[string][]market.Trade
	depth      map[string]market.Depth
}

func New(maxCandles, maxTrades int) *Cache {
	return &Cache{
		maxCandles: maxCandles,
		maxTrades:  maxTrades,
		candles:    make(map[CandleKey][]market.Candle),
		trades:     make(map[string][]market.Trade),
		depth:      make(map[string]market.Depth),
	}
}

// SetHistory replaces the (symbol, timeframe) candle buffer wholesale,
// keeping at most maxCandles of the newest candles.
func (c *Cache) SetHistory(symbol string, tf market.Timeframe, candles []market.Candle) {
	key := CandleKey{Symbol: strings.ToUpper(symbol), Timeframe: tf}
	if len(candles) > c.maxCandles {
		candles = candles[len(candles)-c.maxCandles:]
	}
	buf := make([]market.Candle, len(candles))
	copy(buf, candles)

	c.mu.Lock()
	c.candles[key] = buf
	c.mu.Unlock()
}

// AppendCandle folds an incremental candle into the buffer. A forming candle
// replaces the last entry. A closed candle with an open time strictly greater
// than the last entry's appends; one at or before the last entry's open time
// is a correction and overwrites the last entry, preserving monotonic order.
func (c *Cache) AppendCandle(symbol string, tf market.Timeframe, candle market.Candle, closed bool) {
	key := CandleKey{Symbol: strings.ToUpper(symbol), Timeframe: tf}

	c.mu.Lock()
	defer c.mu.Unlock()

	buf := c.candles[key]
	if len(buf) == 0 {
		c.candles[key] = append(buf, candle)
		return
	}
	if closed && candle.OpenTime > buf[len(buf)-1].OpenTime {
		buf = append(buf, candle)
		if len(buf) > c.maxCandles {
			buf = buf[len(buf)-c.maxCandles:]
		}
		c.candles[key] = buf
		return
	}
	buf[len(buf)-1] = candle
}

// AppendTrade appends to the symbol's bounded FIFO trade buffer.
func (c *Cache) AppendTrade(symbol string, trade market.Trade) {
	key := strings.ToUpper(symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	buf := append(c.trades[key], trade)
	if len(buf) > c.maxTrades {
		buf = buf[len(buf)-c.maxTrades:]
	}
	c.trades[key] = buf
}

// SetDepth replaces the single stored depth view for a symbol. It holds only
// the latest reconciled book state, never partial diffs.
func (c *Cache) SetDepth(symbol string, d market.Depth) {
	key := strings.ToUpper(symbol)

	c.mu.Lock()
	c.depth[key] = d
	c.mu.Unlock()
}

// Candles returns a copy of the (symbol, timeframe) buffer, oldest first.
func (c *Cache) Candles(symbol string, tf market.Timeframe) []market.Candle {
	key := CandleKey{Symbol: strings.ToUpper(symbol), Timeframe: tf}

	c.mu.RLock()
	defer c.mu.RUnlock()

	buf, ok := c.candles[key]
	if !ok {
		return nil
	}
	out := make([]market.Candle, len(buf))
	copy(out, buf)
	return out
}

// Trades returns a copy of the symbol's trade buffer, oldest first.
func (c *Cache) Trades(symbol string) []market.Trade {
	c.mu.RLock()
	defer c.mu.RUnlock()

	buf, ok := c.trades[strings.ToUpper(symbol)]
	if !ok {
		return nil
	}
	out := make([]market.Trade, len(buf))
	copy(out, buf)
	return out
}

// Depth returns the latest reconciled depth view for a symbol.
func (c *Cache) Depth(symbol string) (market.Depth, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.depth[strings.ToUpper(symbol)]
	return d, ok
}
