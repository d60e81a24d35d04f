package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/updowngame/updown/internal/domain"
)

// tickTTL bounds how long a stale tick is served. A symbol whose feed has
// been dead longer than this simply has no cached price.
const tickTTL = 30 * time.Second

// TickCache implements domain.TickCache using Redis hashes. Each symbol's
// latest tick is stored at key "tick:{symbol}" with fields "price" and "ts"
// (Unix millisecond event time).
type TickCache struct {
	rdb *redis.Client
}

// NewTickCache creates a TickCache backed by the given Client.
func NewTickCache(c *Client) *TickCache {
	return &TickCache{rdb: c.Underlying()}
}

func tickKey(symbol string) string {
	return "tick:" + strings.ToUpper(symbol)
}

// SetTick stores the latest tick for its symbol.
func (tc *TickCache) SetTick(ctx context.Context, tick domain.PriceTick) error {
	key := tickKey(tick.Symbol)
	fields := map[string]interface{}{
		"price": tick.Price.String(),
		"ts":    strconv.FormatInt(tick.EventTime.UnixMilli(), 10),
	}

	pipe := tc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, tickTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set tick %s: %w", tick.Symbol, err)
	}
	return nil
}

// GetTick retrieves the latest tick for a symbol. It returns
// domain.ErrNotFound when no fresh tick is cached.
func (tc *TickCache) GetTick(ctx context.Context, symbol string) (domain.PriceTick, error) {
	vals, err := tc.rdb.HGetAll(ctx, tickKey(symbol)).Result()
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("redis: get tick %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.PriceTick{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return domain.PriceTick{}, domain.ErrNotFound
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("redis: parse tick price %s: %w", symbol, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.PriceTick{}, domain.ErrNotFound
	}
	tsMilli, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("redis: parse tick ts %s: %w", symbol, err)
	}

	return domain.PriceTick{
		Symbol:    strings.ToUpper(symbol),
		Price:     price,
		EventTime: time.UnixMilli(tsMilli),
	}, nil
}

// Compile-time interface check.
var _ domain.TickCache = (*TickCache)(nil)
