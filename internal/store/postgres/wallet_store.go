package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/updowngame/updown/internal/domain"
)

// WalletStore implements domain.Ledger on a wallets table. Debit is a single
// conditional UPDATE so two concurrent debits can never overdraw a balance.
type WalletStore struct {
	pool *pgxpool.Pool
}

// NewWalletStore creates a new WalletStore backed by the given connection pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Debit subtracts amount from the user's balance. It returns
// domain.ErrInsufficientBalance when the wallet does not exist or holds less
// than amount.
func (s *WalletStore) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("postgres: debit %s: non-positive amount %s", userID, amount)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE wallets SET balance = balance - $2, updated_at = NOW()
		 WHERE user_id = $1 AND balance >= $2`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// Credit adds amount to the user's balance, creating the wallet if needed.
func (s *WalletStore) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("postgres: credit %s: negative amount %s", userID, amount)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO wallets (user_id, balance, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
			balance = wallets.balance + EXCLUDED.balance,
			updated_at = NOW()`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", userID, err)
	}
	return nil
}

// Balance returns the user's current balance. Unknown users have a zero
// balance rather than an error.
func (s *WalletStore) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1`, userID,
	).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("postgres: balance %s: %w", userID, err)
	}
	return balance, nil
}

var _ domain.Ledger = (*WalletStore)(nil)
