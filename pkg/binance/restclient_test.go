package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"marketfeed/internal/market"
)

func newTestClient(handler http.HandlerFunc) (*RESTClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewRESTClient(srv.URL, 5*time.Second), srv
}

func TestGetKlinesParsesRows(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "1m" || q.Get("limit") != "2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[
			[1700000000000,"43000.1","43010.5","42990.0","43005.2","12.5",1700000059999,"0","0","0","0","0"],
			[1700000060000,"43005.2","43020.0","43000.0","43015.0","8.1",1700000119999,"0","0","0","0","0"]
		]`))
	})
	defer srv.Close()

	candles, err := c.GetKlines(context.Background(), "BTCUSDT", market.Timeframe1m, 2, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	first := candles[0]
	if first.OpenTime != 1700000000000 || first.Open != 43000.1 || first.High != 43010.5 ||
		first.Low != 42990.0 || first.Close != 43005.2 || first.Volume != 12.5 {
		t.Fatalf("unexpected first candle: %+v", first)
	}
}

func TestGetKlinesSkipsMalformedRows(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			[1700000000000,"not a number","1","1","1","1"],
			[1700000060000],
			[1700000120000,"2","3","1","2","5"]
		]`))
	})
	defer srv.Close()

	candles, err := c.GetKlines(context.Background(), "BTCUSDT", market.Timeframe1m, 3, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 1 || candles[0].OpenTime != 1700000120000 {
		t.Fatalf("expected only the well-formed row, got %+v", candles)
	}
}

func TestGetKlineHistoryPagesForward(t *testing.T) {
	const interval = int64(60_000)
	var requests int
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		requests++
		q := r.URL.Query()
		start, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
		limit, _ := strconv.Atoi(q.Get("limit"))

		w.Write([]byte("["))
		for i := 0; i < limit; i++ {
			if i > 0 {
				w.Write([]byte(","))
			}
			open := start + int64(i)*interval
			w.Write([]byte(`[` + strconv.FormatInt(open, 10) + `,"1","2","1","2","5"]`))
		}
		w.Write([]byte("]"))
	})
	defer srv.Close()

	candles, err := c.GetKlineHistory(context.Background(), "BTCUSDT", market.Timeframe1m, 2500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requests != 3 {
		t.Fatalf("expected 3 pages, got %d requests", requests)
	}
	if len(candles) != 2500 {
		t.Fatalf("expected 2500 candles, got %d", len(candles))
	}
	// Pages must join without gaps or overlap.
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTime != candles[i-1].OpenTime+interval {
			t.Fatalf("discontinuity at %d: %d -> %d", i, candles[i-1].OpenTime, candles[i].OpenTime)
		}
	}
}

func TestGetKlineHistorySmallLimitSinglePage(t *testing.T) {
	var requests int
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if got := r.URL.Query().Get("startTime"); got != "" {
			t.Errorf("small history must leave the range open, got startTime=%s", got)
		}
		w.Write([]byte(`[[1700000000000,"1","2","1","2","5"]]`))
	})
	defer srv.Close()

	candles, err := c.GetKlineHistory(context.Background(), "BTCUSDT", market.Timeframe1m, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requests != 1 || len(candles) != 1 {
		t.Fatalf("expected one request and one candle, got %d / %d", requests, len(candles))
	}
}

func TestGetDepthParsesSnapshot(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/depth" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"lastUpdateId": 42,
			"bids": [["100.5","3.2"],["100.0","0"],["bad","1"]],
			"asks": [["101.0","1.5"]]
		}`))
	})
	defer srv.Close()

	depth, err := c.GetDepth(context.Background(), "BTCUSDT", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if depth.LastUpdateID != 42 {
		t.Fatalf("expected cursor 42, got %d", depth.LastUpdateID)
	}
	// Zero-size and malformed entries never make it into a snapshot.
	if len(depth.Bids) != 1 || depth.Bids[0] != (market.Level{Price: 100.5, Size: 3.2}) {
		t.Fatalf("unexpected bids: %+v", depth.Bids)
	}
	if len(depth.Asks) != 1 || depth.Asks[0].Price != 101.0 {
		t.Fatalf("unexpected asks: %+v", depth.Asks)
	}
}

func TestGetDepthNonOKStatus(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	})
	defer srv.Close()

	if _, err := c.GetDepth(context.Background(), "NOPE", 1000); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
