package engine

import (
	"strings"
	"sync"

	"marketfeed/internal/market"
)

// SymbolState holds the active symbol. It is the one piece of state touched
// from both the caller context and the background context, so get/set are
// mutex-guarded. Symbols are normalized to uppercase.
type SymbolState struct {
	mu     sync.Mutex
	symbol string
}

func NewSymbolState(initial string) *SymbolState {
	return &SymbolState{symbol: strings.ToUpper(initial)}
}

func (s *SymbolState) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbol
}

// Set normalizes and stores the symbol. It returns the effective value and
// whether it changed.
func (s *SymbolState) Set(symbol string) (string, bool) {
	symbol = strings.ToUpper(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	if symbol == s.symbol {
		return s.symbol, false
	}
	s.symbol = symbol
	return s.symbol, true
}

// TimeframeState holds the active timeframe behind a mutex. Values are
// validated before they reach Set.
type TimeframeState struct {
	mu sync.Mutex
	tf market.Timeframe
}

func NewTimeframeState(initial market.Timeframe) *TimeframeState {
	return &TimeframeState{tf: initial}
}

func (s *TimeframeState) Get() market.Timeframe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tf
}

// Set stores the timeframe and reports whether it changed.
func (s *TimeframeState) Set(tf market.Timeframe) (market.Timeframe, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tf == s.tf {
		return s.tf, false
	}
	s.tf = tf
	return s.tf, true
}
