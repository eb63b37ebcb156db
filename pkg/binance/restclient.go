package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marketfeed/internal/market"
)

// maxKlinesPerRequest is a conservative page size; the exchange hard limit is 1500.
const maxKlinesPerRequest = 1000

// RESTClient talks to the Binance spot REST API. It is used only for the
// historical bootstrap (klines) and depth snapshots; live data arrives over
// the stream supervisors.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetKlines fetches one page of OHLCV candles for a symbol/timeframe.
// startMs/endMs of 0 leave the range open, which returns the most recent
// candles up to limit.
func (c *RESTClient) GetKlines(ctx context.Context, symbol string, tf market.Timeframe, limit int, startMs, endMs int64) ([]market.Candle, error) {
	endpoint := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d", c.baseURL, symbol, tf, limit)
	if startMs > 0 {
		endpoint += fmt.Sprintf("&startTime=%d", startMs)
	}
	if endMs > 0 {
		endpoint += fmt.Sprintf("&endTime=%d", endMs)
	}

	var rows []klineRow
	if err := c.getJSON(ctx, endpoint, &rows); err != nil {
		return nil, err
	}
	return parseKlines(rows), nil
}

// GetKlineHistory loads up to limit recent candles, paging forward in time in
// batches so that requests above the per-request cap still fill the buffer.
// A failure mid-pagination returns what was fetched so far together with the
// error; callers may use the partial history.
func (c *RESTClient) GetKlineHistory(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	interval := tf.Millis()
	if interval <= 0 {
		return nil, fmt.Errorf("unsupported timeframe: %q", tf)
	}
	if limit <= maxKlinesPerRequest {
		return c.GetKlines(ctx, symbol, tf, limit, 0, 0)
	}

	nowMs := time.Now().UnixMilli()
	startMs := nowMs - int64(limit)*interval
	var candles []market.Candle
	for len(candles) < limit && startMs < nowMs {
		batch := limit - len(candles)
		if batch > maxKlinesPerRequest {
			batch = maxKlinesPerRequest
		}
		endMs := startMs + int64(batch)*interval
		page, err := c.GetKlines(ctx, symbol, tf, batch, startMs, endMs)
		if err != nil {
			return tail(candles, limit), err
		}
		if len(page) == 0 {
			break
		}
		candles = append(candles, page...)
		startMs = page[len(page)-1].OpenTime + interval
		if len(page) < batch {
			// Short page: no more data in range.
			break
		}
	}
	return tail(candles, limit), nil
}

// GetDepth fetches a full order-book snapshot with its update cursor.
// Entries with size <= 0 are dropped during parsing.
func (c *RESTClient) GetDepth(ctx context.Context, symbol string, limit int) (market.Depth, error) {
	endpoint := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d", c.baseURL, symbol, limit)

	var resp DepthResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return market.Depth{}, err
	}
	return market.Depth{
		Bids:         ParseLevels(resp.Bids),
		Asks:         ParseLevels(resp.Asks),
		LastUpdateID: resp.LastUpdateID,
	}, nil
}

func (c *RESTClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("binance error (%d): %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func tail(candles []market.Candle, limit int) []market.Candle {
	if len(candles) > limit {
		return candles[len(candles)-limit:]
	}
	return candles
}
