package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Binance BinanceConfig `mapstructure:"binance"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Log     LogConfig     `mapstructure:"log"`
}

type BinanceConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`
}

type RESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WSConfig struct {
	URL            string        `mapstructure:"url"`             // stream base, e.g. wss://stream.binance.com:9443/ws
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"` // fixed delay between redial attempts
}

type EngineConfig struct {
	InitialSymbol    string        `mapstructure:"initial_symbol"`
	InitialTimeframe string        `mapstructure:"initial_timeframe"`
	Watchlist        []string      `mapstructure:"watchlist"`       // symbols kept from the aggregate ticker feed
	HistoryLimit     int           `mapstructure:"history_limit"`   // candles fetched on bootstrap
	DepthLimit       int           `mapstructure:"depth_limit"`     // levels per side in depth snapshots
	MaxCandles       int           `mapstructure:"max_candles"`     // candle buffer capacity per (symbol, timeframe)
	MaxTrades        int           `mapstructure:"max_trades"`      // trade buffer capacity per symbol
	TickerInterval   time.Duration `mapstructure:"ticker_interval"` // min interval between TickersEvents
	DepthInterval    time.Duration `mapstructure:"depth_interval"`  // min interval between DepthUpdateEvents
	EventBuffer      int           `mapstructure:"event_buffer"`    // per-subscriber event channel depth
	QueueSize        int           `mapstructure:"queue_size"`      // consume loop + router queue depth
	StopTimeout      time.Duration `mapstructure:"stop_timeout"`    // max wait for background quiesce on Stop
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper. It reads config.yaml if
// present and overrides with environment variables; every key has a default,
// so the engine runs without any config file at all.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Support environment variables with dot notation (e.g., BINANCE_WS_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatalf("failed to read config: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.rest.base_url", "https://api.binance.com")
	v.SetDefault("binance.rest.timeout", 10*time.Second)
	v.SetDefault("binance.ws.url", "wss://stream.binance.com:9443/ws")
	v.SetDefault("binance.ws.reconnect_delay", time.Second)

	v.SetDefault("engine.initial_symbol", "BTCUSDT")
	v.SetDefault("engine.initial_timeframe", "1m")
	v.SetDefault("engine.watchlist", []string{
		"BTCUSDT", "ETHUSDT", "USDTUSDC", "XRPUSDT", "BNBUSDT",
		"USDCUSDT", "SOLUSDT", "TRXUSDT", "DOGEUSDT", "ADAUSDT",
	})
	v.SetDefault("engine.history_limit", 500)
	v.SetDefault("engine.depth_limit", 1000)
	v.SetDefault("engine.max_candles", 1200)
	v.SetDefault("engine.max_trades", 2000)
	v.SetDefault("engine.ticker_interval", 400*time.Millisecond)
	v.SetDefault("engine.depth_interval", 100*time.Millisecond)
	v.SetDefault("engine.event_buffer", 256)
	v.SetDefault("engine.queue_size", 1024)
	v.SetDefault("engine.stop_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")
}
