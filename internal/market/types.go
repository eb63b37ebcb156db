package market

// Side is the taker side of an executed trade.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Candle is a single OHLCV aggregate over one timeframe bucket.
// A candle is mutable while forming and final once the exchange flags it closed.
type Candle struct {
	OpenTime int64   `json:"open_time"` // Bucket open time (milliseconds since epoch)
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"` // Base-asset volume traded inside the bucket
}

// Trade is one executed trade from the time & sales feed.
// Ordering by Ts is exchange-assigned best effort, not strictly monotonic
// across reconnects.
type Trade struct {
	Symbol string  `json:"symbol"` // e.g. "BTCUSDT"
	Price  float64 `json:"price"`
	Qty    float64 `json:"qty"`
	Side   Side    `json:"side"`
	Ts     int64   `json:"ts"` // Execution time (milliseconds since epoch)
}

// Ticker is a rolling 24h market summary for one watch-list symbol.
type Ticker struct {
	Symbol       string  `json:"symbol"`
	LastPrice    float64 `json:"last_price"`
	PctChange24h float64 `json:"pct_change_24h"`
	Volume24h    float64 `json:"volume_24h"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
}

// Spread returns the current bid/ask spread, clamped to zero so a crossed or
// partially-populated ticker never reports a negative value.
func (t Ticker) Spread() float64 {
	if s := t.Ask - t.Bid; s > 0 {
		return s
	}
	return 0
}

// Level is one resting price level of an order-book side.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Depth is a reconciled order-book view for one symbol: bids sorted
// descending, asks ascending, and the upstream update cursor the view
// corresponds to. Levels with size <= 0 are never present.
type Depth struct {
	Bids         []Level `json:"bids"`
	Asks         []Level `json:"asks"`
	LastUpdateID int64   `json:"last_update_id"`
}

// BestBid returns the highest bid, if any.
func (d Depth) BestBid() (Level, bool) {
	if len(d.Bids) == 0 {
		return Level{}, false
	}
	return d.Bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (d Depth) BestAsk() (Level, bool) {
	if len(d.Asks) == 0 {
		return Level{}, false
	}
	return d.Asks[0], true
}

// TopLevels returns copies of the best n levels per side. n <= 0 returns both
// sides in full.
func (d Depth) TopLevels(n int) (bids, asks []Level) {
	return topOf(d.Bids, n), topOf(d.Asks, n)
}

func topOf(side []Level, n int) []Level {
	if n > 0 && len(side) > n {
		side = side[:n]
	}
	out := make([]Level, len(side))
	copy(out, side)
	return out
}
