package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/updowngame/updown/internal/domain"
)

// snapshotTTL keeps a crashed machine's last snapshot from being served
// forever. The machine refreshes it every tick.
const snapshotTTL = 10 * time.Second

// RoundCache implements domain.RoundCache. The live round snapshot is stored
// as JSON at key "round:{symbol}" so API replicas answer round queries
// without touching the state machine.
type RoundCache struct {
	rdb *redis.Client
}

// NewRoundCache creates a RoundCache backed by the given Client.
func NewRoundCache(c *Client) *RoundCache {
	return &RoundCache{rdb: c.Underlying()}
}

func roundKey(symbol string) string {
	return "round:" + strings.ToUpper(symbol)
}

// SetSnapshot stores the current round snapshot for its symbol.
func (rc *RoundCache) SetSnapshot(ctx context.Context, snap domain.RoundSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal round snapshot: %w", err)
	}
	if err := rc.rdb.Set(ctx, roundKey(snap.Symbol), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set round snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

// GetSnapshot retrieves the live round snapshot for a symbol. It returns
// domain.ErrNotFound when no snapshot is cached.
func (rc *RoundCache) GetSnapshot(ctx context.Context, symbol string) (domain.RoundSnapshot, error) {
	data, err := rc.rdb.Get(ctx, roundKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RoundSnapshot{}, domain.ErrNotFound
		}
		return domain.RoundSnapshot{}, fmt.Errorf("redis: get round snapshot %s: %w", symbol, err)
	}

	var snap domain.RoundSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.RoundSnapshot{}, fmt.Errorf("redis: unmarshal round snapshot %s: %w", symbol, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.RoundCache = (*RoundCache)(nil)
