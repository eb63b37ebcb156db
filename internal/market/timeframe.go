package market

import (
	"fmt"
	"strings"
)

// Timeframe identifies a candle aggregation bucket as used by the exchange
// API, e.g. "1m", "15m", "1h".
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe3m  Timeframe = "3m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe2h  Timeframe = "2h"
	Timeframe4h  Timeframe = "4h"
	Timeframe6h  Timeframe = "6h"
	Timeframe8h  Timeframe = "8h"
	Timeframe12h Timeframe = "12h"
	Timeframe1d  Timeframe = "1d"
)

// timeframeMillis maps every supported timeframe to its bucket width.
var timeframeMillis = map[Timeframe]int64{
	Timeframe1m:  60_000,
	Timeframe3m:  180_000,
	Timeframe5m:  300_000,
	Timeframe15m: 900_000,
	Timeframe30m: 1_800_000,
	Timeframe1h:  3_600_000,
	Timeframe2h:  7_200_000,
	Timeframe4h:  14_400_000,
	Timeframe6h:  21_600_000,
	Timeframe8h:  28_800_000,
	Timeframe12h: 43_200_000,
	Timeframe1d:  86_400_000,
}

// IsValid reports whether tf is one of the supported timeframes.
func (tf Timeframe) IsValid() bool {
	_, ok := timeframeMillis[tf]
	return ok
}

// Millis returns the bucket width in milliseconds, or 0 for an unsupported value.
func (tf Timeframe) Millis() int64 {
	return timeframeMillis[tf]
}

// ParseTimeframe normalizes s to lowercase and validates it against the
// supported set. Requesting an unsupported timeframe is a caller bug and is
// rejected here, synchronously.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(s))
	if !tf.IsValid() {
		return "", fmt.Errorf("unsupported timeframe: %q", s)
	}
	return tf, nil
}
