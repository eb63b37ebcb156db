package stream

import (
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"marketfeed/internal/market"
	"marketfeed/pkg/binance"
)

// Wire shapes of the individual stream frames. Field tags follow the
// exchange's single-letter schema.

// tradeFrame mirrors <symbol>@trade.
type tradeFrame struct {
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Qty          string `json:"q"`
	TradeTime    int64  `json:"T"`
	BuyerIsMaker bool   `json:"m"`
}

// klineFrame mirrors <symbol>@kline_<tf>.
type klineFrame struct {
	Kline struct {
		Symbol   string `json:"s"`
		OpenTime int64  `json:"t"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

// depthFrame mirrors <symbol>@depth: an incremental diff with the
// [FirstID, LastID] cursor range.
type depthFrame struct {
	Symbol  string     `json:"s"`
	FirstID int64      `json:"U"`
	LastID  int64      `json:"u"`
	Bids    [][]string `json:"b"`
	Asks    [][]string `json:"a"`
}

// tickerEntry is one element of the !ticker@arr array frame.
type tickerEntry struct {
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	PctChange string `json:"P"`
	Volume    string `json:"v"`
	Bid       string `json:"b"`
	Ask       string `json:"a"`
}

// Handler parses one raw websocket frame. Parse failures drop the frame and
// never tear down the connection.
type Handler func(msg []byte)

// TradeHandler returns a handler that parses trade frames and forwards them
// to out.
func TradeHandler(out chan<- Message, log *zap.Logger) Handler {
	return func(msg []byte) {
		var f tradeFrame
		if err := json.Unmarshal(msg, &f); err != nil || f.Symbol == "" {
			log.Debug("dropping unparseable trade frame", zap.Error(err))
			return
		}
		price, err1 := strconv.ParseFloat(f.Price, 64)
		qty, err2 := strconv.ParseFloat(f.Qty, 64)
		if err1 != nil || err2 != nil {
			log.Debug("dropping trade frame with bad numbers",
				zap.String("price", f.Price), zap.String("qty", f.Qty))
			return
		}
		side := market.SideBuy
		if f.BuyerIsMaker {
			side = market.SideSell
		}
		send(out, TradeMessage{Trade: market.Trade{
			Symbol: strings.ToUpper(f.Symbol),
			Price:  price,
			Qty:    qty,
			Side:   side,
			Ts:     f.TradeTime,
		}}, log)
	}
}

// KlineHandler returns a handler that parses kline frames for the given
// timeframe and forwards them to out.
func KlineHandler(out chan<- Message, tf market.Timeframe, log *zap.Logger) Handler {
	return func(msg []byte) {
		var f klineFrame
		if err := json.Unmarshal(msg, &f); err != nil || f.Kline.Symbol == "" {
			log.Debug("dropping unparseable kline frame", zap.Error(err))
			return
		}
		k := f.Kline
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		closePrice, err4 := strconv.ParseFloat(k.Close, 64)
		volume, err5 := strconv.ParseFloat(k.Volume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			log.Debug("dropping kline frame with bad numbers", zap.String("symbol", k.Symbol))
			return
		}
		send(out, CandleMessage{
			Symbol:    strings.ToUpper(k.Symbol),
			Timeframe: tf,
			Candle: market.Candle{
				OpenTime: k.OpenTime,
				Open:     open,
				High:     high,
				Low:      low,
				Close:    closePrice,
				Volume:   volume,
			},
			Closed: k.Closed,
		}, log)
	}
}

// DepthHandler returns a handler that parses incremental depth frames and
// forwards them to out. Zero-size levels are preserved (they mean removal).
func DepthHandler(out chan<- Message, log *zap.Logger) Handler {
	return func(msg []byte) {
		var f depthFrame
		if err := json.Unmarshal(msg, &f); err != nil || f.Symbol == "" {
			log.Debug("dropping unparseable depth frame", zap.Error(err))
			return
		}
		send(out, DepthDiffMessage{
			Symbol:  strings.ToUpper(f.Symbol),
			FirstID: f.FirstID,
			LastID:  f.LastID,
			Bids:    binance.ParseChangedLevels(f.Bids),
			Asks:    binance.ParseChangedLevels(f.Asks),
		}, log)
	}
}

// TickerHandler returns a handler that parses !ticker@arr frames, keeps only
// watch-list symbols, and forwards the batch to out. Entries with malformed
// numbers are skipped individually.
func TickerHandler(out chan<- Message, watchlist []string, log *zap.Logger) Handler {
	watched := make(map[string]bool, len(watchlist))
	for _, s := range watchlist {
		watched[strings.ToUpper(s)] = true
	}
	return func(msg []byte) {
		var entries []tickerEntry
		if err := json.Unmarshal(msg, &entries); err != nil {
			log.Debug("dropping unparseable ticker frame", zap.Error(err))
			return
		}
		tickers := make([]market.Ticker, 0, len(watched))
		for _, e := range entries {
			symbol := strings.ToUpper(e.Symbol)
			if len(watched) > 0 && !watched[symbol] {
				continue
			}
			last, err1 := strconv.ParseFloat(e.LastPrice, 64)
			pct, err2 := strconv.ParseFloat(e.PctChange, 64)
			vol, err3 := strconv.ParseFloat(e.Volume, 64)
			bid, err4 := strconv.ParseFloat(e.Bid, 64)
			ask, err5 := strconv.ParseFloat(e.Ask, 64)
			if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
				continue
			}
			tickers = append(tickers, market.Ticker{
				Symbol:       symbol,
				LastPrice:    last,
				PctChange24h: pct,
				Volume24h:    vol,
				Bid:          bid,
				Ask:          ask,
			})
		}
		if len(tickers) > 0 {
			send(out, TickersMessage{Tickers: tickers}, log)
		}
	}
}

// send is a non-blocking forward. A full consume queue drops the message;
// for depth diffs the resulting sequence gap is detected downstream and
// recovered by a resync.
func send(out chan<- Message, m Message, log *zap.Logger) {
	select {
	case out <- m:
	default:
		log.Warn("consume queue full, dropping message")
	}
}
