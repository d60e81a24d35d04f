package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/updowngame/updown/internal/domain"
)

// RESTClient reads historical candles from the Binance klines endpoint. It
// is a best-effort convenience path: errors are reported to the caller, not
// retried here.
type RESTClient struct {
	baseURL string
	client  *http.Client
}

// NewRESTClient creates a client for the given REST base URL (e.g.
// "https://api.binance.com").
func NewRESTClient(baseURL string) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Klines fetches up to limit candles for the symbol at the given interval
// (e.g. "1m"). A zero endTime means "up to now".
func (c *RESTClient) Klines(ctx context.Context, symbol, interval string, limit int, endTime time.Time) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if !endTime.IsZero() {
		q.Set("endTime", strconv.FormatInt(endTime.UnixMilli(), 10))
	}

	reqURL := c.baseURL + "/api/v3/klines?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("binance: create klines request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance: klines request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("binance: read klines response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance: klines status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("binance: kline row %d: %w", i, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}
