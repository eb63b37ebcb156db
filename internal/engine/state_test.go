package engine

import (
	"testing"

	"marketfeed/internal/market"
)

func TestSymbolStateNormalizesAndDetectsChange(t *testing.T) {
	s := NewSymbolState("btcusdt")
	if got := s.Get(); got != "BTCUSDT" {
		t.Fatalf("expected BTCUSDT, got %q", got)
	}

	if sym, changed := s.Set("BtcUsdt"); changed {
		t.Fatalf("same symbol in different casing must not count as a change, got %q", sym)
	}

	sym, changed := s.Set("ethusdt")
	if !changed || sym != "ETHUSDT" {
		t.Fatalf("expected change to ETHUSDT, got %q changed=%v", sym, changed)
	}
	if got := s.Get(); got != "ETHUSDT" {
		t.Fatalf("expected ETHUSDT, got %q", got)
	}
}

func TestTimeframeStateDetectsChange(t *testing.T) {
	s := NewTimeframeState(market.Timeframe1m)

	if _, changed := s.Set(market.Timeframe1m); changed {
		t.Fatal("same timeframe must not count as a change")
	}

	tf, changed := s.Set(market.Timeframe4h)
	if !changed || tf != market.Timeframe4h {
		t.Fatalf("expected change to 4h, got %s changed=%v", tf, changed)
	}
	if got := s.Get(); got != market.Timeframe4h {
		t.Fatalf("expected 4h, got %s", got)
	}
}
