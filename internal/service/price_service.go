package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/updowngame/updown/internal/domain"
	"github.com/updowngame/updown/internal/platform/binance"
)

// PriceService answers price queries from the tick cache and the exchange
// REST API. It never touches the streaming connection, so it works the same
// in every deployment mode.
type PriceService struct {
	ticks  domain.TickCache
	rest   *binance.RESTClient
	logger *slog.Logger
}

// NewPriceService creates a PriceService.
func NewPriceService(ticks domain.TickCache, rest *binance.RESTClient, logger *slog.Logger) *PriceService {
	return &PriceService{
		ticks:  ticks,
		rest:   rest,
		logger: logger.With(slog.String("component", "price_service")),
	}
}

// Latest returns the freshest cached tick for a symbol. It returns
// domain.ErrNotFound when the feed has been silent past the cache TTL.
func (s *PriceService) Latest(ctx context.Context, symbol string) (domain.PriceTick, error) {
	tick, err := s.ticks.GetTick(ctx, symbol)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("price_service: latest %s: %w", symbol, err)
	}
	return tick, nil
}

// History returns historical candles from the exchange REST API.
func (s *PriceService) History(ctx context.Context, symbol, interval string, limit int, endTime time.Time) ([]domain.Candle, error) {
	candles, err := s.rest.Klines(ctx, symbol, interval, limit, endTime)
	if err != nil {
		return nil, fmt.Errorf("price_service: history %s: %w", symbol, err)
	}
	return candles, nil
}
