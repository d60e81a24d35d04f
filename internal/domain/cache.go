package domain

import (
	"context"
	"time"
)

// TickCache stores the latest observed price tick per symbol for fast reads
// outside the game process (observer replicas, API).
type TickCache interface {
	SetTick(ctx context.Context, tick PriceTick) error
	GetTick(ctx context.Context, symbol string) (PriceTick, error)
}

// RoundCache stores the live round snapshot so read traffic never touches
// the state machine.
type RoundCache interface {
	SetSnapshot(ctx context.Context, snap RoundSnapshot) error
	GetSnapshot(ctx context.Context, symbol string) (RoundSnapshot, error)
}

// SignalBus provides pub/sub fan-out between the game machine and the
// client-facing transport.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. The game mode acquires a
// per-symbol lock at startup so only one machine settles rounds for a symbol.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
