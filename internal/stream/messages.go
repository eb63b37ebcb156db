package stream

import "marketfeed/internal/market"

// Message is the typed handoff between background producers (stream
// supervisors, REST bootstrap) and the engine's single consume loop. No
// producer ever touches the book or cache directly.
type Message interface {
	isMessage()
}

// TradeMessage carries one parsed trade frame.
type TradeMessage struct {
	Trade market.Trade
}

// CandleMessage carries one parsed kline frame.
type CandleMessage struct {
	Symbol    string
	Timeframe market.Timeframe
	Candle    market.Candle
	Closed    bool
}

// HistoryMessage carries the REST candle bootstrap for a new (symbol,
// timeframe) key. It replaces any previous history.
type HistoryMessage struct {
	Symbol    string
	Timeframe market.Timeframe
	Candles   []market.Candle
}

// DepthSnapshotMessage carries a REST depth snapshot (bootstrap or resync).
type DepthSnapshotMessage struct {
	Symbol string
	Depth  market.Depth
}

// DepthDiffMessage carries one incremental depth frame with its cursor range.
// Level sizes of 0 mean removal.
type DepthDiffMessage struct {
	Symbol  string
	FirstID int64
	LastID  int64
	Bids    []market.Level
	Asks    []market.Level
}

// BookResetMessage clears the order-book replica ahead of a symbol switch.
type BookResetMessage struct {
	Symbol string
}

// TickersMessage carries one parsed watch-list ticker array frame.
type TickersMessage struct {
	Tickers []market.Ticker
}

// StatusMessage reports a connection lifecycle transition.
type StatusMessage struct {
	Text string
}

func (TradeMessage) isMessage()         {}
func (CandleMessage) isMessage()        {}
func (HistoryMessage) isMessage()       {}
func (DepthSnapshotMessage) isMessage() {}
func (DepthDiffMessage) isMessage()     {}
func (BookResetMessage) isMessage()     {}
func (TickersMessage) isMessage()       {}
func (StatusMessage) isMessage()        {}
