package main

import (
	"os"
	"os/signal"
	"syscall"

	"marketfeed/config"
	"marketfeed/internal/engine"
	"marketfeed/internal/market"
	"marketfeed/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	eng := engine.New(cfg, log)

	// Headless consumer: subscribe before starting so no event is missed.
	id, events := eng.Subscribe()
	go logEvents(log, events)

	if err := eng.Start(); err != nil {
		log.Fatal("engine failed to start", zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	eng.Stop()
	eng.Unsubscribe(id)
}

// logEvents prints a compact line per engine event until the channel closes.
func logEvents(log *zap.Logger, events <-chan market.Event) {
	for evt := range events {
		switch e := evt.(type) {
		case market.SymbolChanged:
			log.Info("event: symbol changed", zap.String("symbol", e.Symbol))
		case market.TimeframeChanged:
			log.Info("event: timeframe changed", zap.String("timeframe", string(e.Timeframe)))
		case market.CandleHistory:
			log.Info("event: candle history",
				zap.String("symbol", e.Symbol),
				zap.String("timeframe", string(e.Timeframe)),
				zap.Int("candles", len(e.Candles)))
		case market.CandleUpdate:
			log.Debug("event: candle update",
				zap.String("symbol", e.Symbol),
				zap.Float64("close", e.Candle.Close),
				zap.Bool("closed", e.Closed))
		case market.TradeEvent:
			log.Debug("event: trade",
				zap.String("symbol", e.Trade.Symbol),
				zap.Float64("price", e.Trade.Price),
				zap.Float64("qty", e.Trade.Qty),
				zap.String("side", string(e.Trade.Side)))
		case market.DepthSnapshotEvent:
			log.Info("event: depth snapshot",
				zap.String("symbol", e.Symbol),
				zap.Int("bids", len(e.Bids)),
				zap.Int("asks", len(e.Asks)),
				zap.Int64("last_update_id", e.LastUpdateID))
		case market.DepthUpdateEvent:
			log.Debug("event: depth update",
				zap.String("symbol", e.Symbol),
				zap.Int64("last_update_id", e.LastUpdateID))
		case market.TickersEvent:
			log.Debug("event: tickers", zap.Int("count", len(e.Tickers)))
		case market.StatusEvent:
			log.Info("event: status", zap.String("text", e.Text))
		}
	}
}
