package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/updowngame/updown/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// Save inserts a bet. The (round_id, user_id) unique constraint backs the
// one-bet-per-round rule at the storage layer as well.
func (s *BetStore) Save(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (id, round_id, user_id, direction, amount, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.RoundID, b.UserID, string(b.Direction), b.Amount, b.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save bet %s: %w", b.ID, err)
	}
	return nil
}

// UpdateResults writes the settlement outcome onto each bet of a round in a
// single batch.
func (s *BetStore) UpdateResults(ctx context.Context, roundID uuid.UUID, results []domain.BettingResult) error {
	if len(results) == 0 {
		return nil
	}

	const query = `
		UPDATE bets SET is_winner = $3, payout = $4, multiplier = $5
		WHERE round_id = $1 AND user_id = $2`

	batch := &pgx.Batch{}
	for _, res := range results {
		batch.Queue(query, roundID, res.UserID, res.IsWinner, res.Payout, res.Multiplier)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: update bet result %d for round %s: %w", i, roundID, err)
		}
	}
	return nil
}

const betCols = `id, round_id, user_id, direction, amount, placed_at`

func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var direction string
	err := row.Scan(&b.ID, &b.RoundID, &b.UserID, &direction, &b.Amount, &b.PlacedAt)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Direction = domain.Direction(direction)
	return b, nil
}

// ListByRound returns all bets of a round in placement order.
func (s *BetStore) ListByRound(ctx context.Context, roundID uuid.UUID) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE round_id = $1 ORDER BY placed_at ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for round %s: %w", roundID, err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets rows: %w", err)
	}
	return bets, nil
}

// ListByUser returns a user's bets, newest first, with pagination.
func (s *BetStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE user_id = $1 ORDER BY placed_at DESC`
	args := []any{userID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for user %s: %w", userID, err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list user bets rows: %w", err)
	}
	return bets, nil
}

var _ domain.BetStore = (*BetStore)(nil)
