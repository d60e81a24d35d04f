package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/updowngame/updown/internal/domain"
)

// PriceQueryService defines the methods the price handler requires from the
// service layer.
type PriceQueryService interface {
	Latest(ctx context.Context, symbol string) (domain.PriceTick, error)
	History(ctx context.Context, symbol, interval string, limit int, endTime time.Time) ([]domain.Candle, error)
}

// PriceHandler serves price-related HTTP endpoints.
type PriceHandler struct {
	prices PriceQueryService
	symbol string
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler with the given default symbol.
func NewPriceHandler(prices PriceQueryService, symbol string, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		prices: prices,
		symbol: symbol,
		logger: logger,
	}
}

// LatestPrice returns the freshest cached tick.
// GET /api/prices/latest?symbol=BTCUSDT
func (h *PriceHandler) LatestPrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = h.symbol
	}

	tick, err := h.prices.Latest(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no recent price for symbol")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: latest price failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get price")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"symbol":     tick.Symbol,
		"price":      tick.Price.String(),
		"event_time": tick.EventTime.UTC().Format(time.RFC3339Nano),
	})
}

// candleView is the JSON shape of one historical candle.
type candleView struct {
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
}

// PriceHistory returns historical candles from the exchange.
// GET /api/prices/history?symbol=BTCUSDT&interval=1m&limit=100&end=2026-01-02T15:04:05Z
func (h *PriceHandler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol := q.Get("symbol")
	if symbol == "" {
		symbol = h.symbol
	}
	interval := q.Get("interval")
	if interval == "" {
		interval = "1m"
	}

	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	var endTime time.Time
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end must be an RFC3339 timestamp")
			return
		}
		endTime = t
	}

	candles, err := h.prices.History(r.Context(), symbol, interval, limit, endTime)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: price history failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to fetch price history")
		return
	}

	views := make([]candleView, 0, len(candles))
	for _, c := range candles {
		views = append(views, candleView{
			OpenTime:  c.OpenTime.UTC().Format(time.RFC3339Nano),
			CloseTime: c.CloseTime.UTC().Format(time.RFC3339Nano),
			Open:      c.Open.String(),
			High:      c.High.String(),
			Low:       c.Low.String(),
			Close:     c.Close.String(),
			Volume:    c.Volume.String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":   symbol,
		"interval": interval,
		"candles":  views,
	})
}
