package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/updowngame/updown/internal/domain"
)

// RoundStore implements domain.RoundStore using PostgreSQL. Rounds persist
// their pool totals; the individual bets live in the bets table.
type RoundStore struct {
	pool *pgxpool.Pool
}

// NewRoundStore creates a new RoundStore backed by the given connection pool.
func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

// Save inserts or updates a round. Settlement retries call Save again with
// the same ID, so the write is an upsert.
func (s *RoundStore) Save(ctx context.Context, r domain.Round) error {
	const query = `
		INSERT INTO rounds (
			id, symbol, phase,
			start_time, betting_end, waiting_end, settle_end,
			locked_price, locked_at, closed_price, closed_at,
			price_degraded, outcome,
			up_total, down_total, total_pool,
			total_payout, platform_fee, net_profit,
			created_at, settled_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13,
			$14, $15, $16,
			$17, $18, $19,
			$20, $21
		)
		ON CONFLICT (id) DO UPDATE SET
			phase          = EXCLUDED.phase,
			locked_price   = EXCLUDED.locked_price,
			locked_at      = EXCLUDED.locked_at,
			closed_price   = EXCLUDED.closed_price,
			closed_at      = EXCLUDED.closed_at,
			price_degraded = EXCLUDED.price_degraded,
			outcome        = EXCLUDED.outcome,
			up_total       = EXCLUDED.up_total,
			down_total     = EXCLUDED.down_total,
			total_pool     = EXCLUDED.total_pool,
			total_payout   = EXCLUDED.total_payout,
			platform_fee   = EXCLUDED.platform_fee,
			net_profit     = EXCLUDED.net_profit,
			settled_at     = EXCLUDED.settled_at`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.Symbol, string(r.Phase),
		r.StartTime, r.BettingEnd, r.WaitingEnd, r.SettleEnd,
		r.LockedPrice, r.LockedAt, r.ClosedPrice, r.ClosedAt,
		r.PriceDegraded, string(r.Outcome),
		r.Pool.UpTotal, r.Pool.DownTotal, r.Pool.TotalPool,
		r.TotalPayout, r.PlatformFee, r.NetProfit,
		r.CreatedAt, r.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save round %s: %w", r.ID, err)
	}
	return nil
}

const roundCols = `id, symbol, phase,
	start_time, betting_end, waiting_end, settle_end,
	locked_price, locked_at, closed_price, closed_at,
	price_degraded, outcome,
	up_total, down_total, total_pool,
	total_payout, platform_fee, net_profit,
	created_at, settled_at`

func scanRound(row pgx.Row) (domain.Round, error) {
	var r domain.Round
	var phase, outcome string
	err := row.Scan(
		&r.ID, &r.Symbol, &phase,
		&r.StartTime, &r.BettingEnd, &r.WaitingEnd, &r.SettleEnd,
		&r.LockedPrice, &r.LockedAt, &r.ClosedPrice, &r.ClosedAt,
		&r.PriceDegraded, &outcome,
		&r.Pool.UpTotal, &r.Pool.DownTotal, &r.Pool.TotalPool,
		&r.TotalPayout, &r.PlatformFee, &r.NetProfit,
		&r.CreatedAt, &r.SettledAt,
	)
	if err != nil {
		return domain.Round{}, err
	}
	r.Phase = domain.RoundPhase(phase)
	r.Outcome = domain.Outcome(outcome)
	return r, nil
}

// GetByID retrieves a round by its primary key.
func (s *RoundStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Round, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+roundCols+` FROM rounds WHERE id = $1`, id)
	r, err := scanRound(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("postgres: get round %s: %w", id, err)
	}
	return r, nil
}

// ListSettled returns settled rounds, newest first, with pagination and
// optional time filtering on the settlement timestamp.
func (s *RoundStore) ListSettled(ctx context.Context, opts domain.ListOpts) ([]domain.Round, error) {
	query := `SELECT ` + roundCols + ` FROM rounds WHERE settled_at IS NOT NULL`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND settled_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND settled_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY settled_at DESC"

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
		return nil, fmt.Errorf("postgres: list settled rounds: %w", err)
	}
	defer rows.Close()

	var rounds []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan settled round: %w", err)
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settled rounds rows: %w", err)
	}
	return rounds, nil
}

// ListSettledBefore returns all rounds settled strictly before the cutoff,
// oldest first. Used by the archiver.
func (s *RoundStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Round, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+roundCols+` FROM rounds
		 WHERE settled_at IS NOT NULL AND settled_at < $1
		 ORDER BY settled_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rounds settled before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var rounds []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan archived round: %w", err)
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list rounds settled before rows: %w", err)
	}
	return rounds, nil
}

// Count returns the total number of rounds in the database.
func (s *RoundStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM rounds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count rounds: %w", err)
	}
	return count, nil
}

var _ domain.RoundStore = (*RoundStore)(nil)
