package market

import "testing"

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("15M")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tf != Timeframe15m {
		t.Fatalf("expected 15m, got %s", tf)
	}

	if _, err := ParseTimeframe("7m"); err == nil {
		t.Fatal("expected error for unsupported timeframe")
	}
	if _, err := ParseTimeframe(""); err == nil {
		t.Fatal("expected error for empty timeframe")
	}
}

func TestTimeframeMillis(t *testing.T) {
	cases := map[Timeframe]int64{
		Timeframe1m:  60_000,
		Timeframe1h:  3_600_000,
		Timeframe1d:  86_400_000,
		Timeframe("7m"): 0,
	}
	for tf, want := range cases {
		if got := tf.Millis(); got != want {
			t.Errorf("%s: expected %d, got %d", tf, want, got)
		}
	}
}
