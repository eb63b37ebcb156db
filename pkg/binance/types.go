package binance

import (
	"encoding/json"
	"strconv"

	"marketfeed/internal/market"
)

// DepthResponse mirrors GET /api/v3/depth. Levels arrive as
// [price, quantity] string pairs, bids sorted descending and asks ascending.
type DepthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// klineRow is one entry of the GET /api/v3/klines response array. The API
// mixes numbers (open time) and strings (prices/volume) inside each row, so
// fields are decoded lazily.
type klineRow []json.RawMessage

// parseKlines converts a raw /api/v3/klines payload to candles.
// Malformed or truncated rows are skipped.
func parseKlines(rows []klineRow) []market.Candle {
	out := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			continue
		}
		vals := make([]float64, 5)
		ok := true
		for i := 0; i < 5; i++ {
			f, err := parseStringFloat(row[i+1])
			if err != nil {
				ok = false
				break
			}
			vals[i] = f
		}
		if !ok {
			continue
		}
		out = append(out, market.Candle{
			OpenTime: openTime,
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}
	return out
}

// ParseLevels converts [price, quantity] string pairs to levels, dropping
// malformed pairs and entries with size <= 0 (zero size means removal and is
// never stored).
func ParseLevels(raw [][]string) []market.Level {
	out := make([]market.Level, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			continue
		}
		if size <= 0 {
			continue
		}
		out = append(out, market.Level{Price: price, Size: size})
	}
	return out
}

// ParseChangedLevels is ParseLevels for diff payloads, where a size of 0 is
// meaningful (level removal) and must be preserved.
func ParseChangedLevels(raw [][]string) []market.Level {
	out := make([]market.Level, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			continue
		}
		out = append(out, market.Level{Price: price, Size: size})
	}
	return out
}

func parseStringFloat(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}
