package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// RoundStore persists rounds. Save upserts by round ID so that retries after
// a partial settlement failure overwrite rather than duplicate.
type RoundStore interface {
	Save(ctx context.Context, round Round) error
	GetByID(ctx context.Context, id uuid.UUID) (Round, error)
	ListSettled(ctx context.Context, opts ListOpts) ([]Round, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]Round, error)
	Count(ctx context.Context) (int64, error)
}

// BetStore persists bets and their settlement results.
type BetStore interface {
	Save(ctx context.Context, bet Bet) error
	UpdateResults(ctx context.Context, roundID uuid.UUID, results []BettingResult) error
	ListByRound(ctx context.Context, roundID uuid.UUID) ([]Bet, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Bet, error)
}

// Ledger debits stakes and credits payouts. Debit must fail fast with
// ErrInsufficientBalance; it is called before a bet is confirmed, Credit once
// per non-zero payout after settlement.
type Ledger interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal) error
	Credit(ctx context.Context, userID string, amount decimal.Decimal) error
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log. Settlement failures and
// price-degraded rounds are recorded here for out-of-band reconciliation.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
