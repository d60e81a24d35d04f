package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/updowngame/updown/internal/domain"
)

// RoundArchiveStore is the narrow read surface the archiver needs from the
// round store.
type RoundArchiveStore interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Round, error)
}

// BetArchiveStore is the narrow read surface the archiver needs from the bet
// store.
type BetArchiveStore interface {
	ListByRound(ctx context.Context, roundID uuid.UUID) ([]domain.Bet, error)
}

// roundRecord is one JSONL line of an archive file: the settled round plus
// every bet placed in it.
type roundRecord struct {
	ID            uuid.UUID        `json:"id"`
	Symbol        string           `json:"symbol"`
	StartTime     time.Time        `json:"start_time"`
	SettledAt     *time.Time       `json:"settled_at"`
	Outcome       domain.Outcome   `json:"outcome"`
	PriceDegraded bool             `json:"price_degraded,omitempty"`
	LockedPrice   *decimal.Decimal `json:"locked_price,omitempty"`
	ClosedPrice   *decimal.Decimal `json:"closed_price,omitempty"`
	UpTotal       decimal.Decimal  `json:"up_total"`
	DownTotal     decimal.Decimal  `json:"down_total"`
	TotalPool     decimal.Decimal  `json:"total_pool"`
	TotalPayout   decimal.Decimal  `json:"total_payout"`
	PlatformFee   decimal.Decimal  `json:"platform_fee"`
	NetProfit     decimal.Decimal  `json:"net_profit"`
	Bets          []betRecord      `json:"bets"`
}

type betRecord struct {
	UserID    string           `json:"user_id"`
	Direction domain.Direction `json:"direction"`
	Amount    decimal.Decimal  `json:"amount"`
	PlacedAt  time.Time        `json:"placed_at"`
}

// RoundArchiver implements domain.Archiver by querying settled rounds past
// the retention cutoff, serializing round and bet data to JSONL, and
// uploading the result to blob storage.
//
// Deletion of the archived rounds from the primary store is intentionally
// not performed here. That is a separate, explicit step to be executed after
// the archive has been verified.
type RoundArchiver struct {
	writer domain.BlobWriter
	rounds RoundArchiveStore
	bets   BetArchiveStore
	audit  domain.AuditStore
}

// NewRoundArchiver creates a RoundArchiver.
func NewRoundArchiver(writer domain.BlobWriter, rounds RoundArchiveStore, bets BetArchiveStore, audit domain.AuditStore) *RoundArchiver {
	return &RoundArchiver{
		writer: writer,
		rounds: rounds,
		bets:   bets,
		audit:  audit,
	}
}

// ArchiveSettledBefore uploads all rounds settled strictly before the cutoff
// as a JSONL object at archive/rounds/YYYY-MM.jsonl and records the archival
// in the audit log. It returns the object path and the number of rounds
// archived; a cutoff with no matching rounds returns an empty path and zero.
func (a *RoundArchiver) ArchiveSettledBefore(ctx context.Context, before time.Time) (string, int, error) {
	rounds, err := a.rounds.ListSettledBefore(ctx, before)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: archive rounds query: %w", err)
	}
	if len(rounds) == 0 {
		return "", 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for _, r := range rounds {
		bets, err := a.bets.ListByRound(ctx, r.ID)
		if err != nil {
			return "", 0, fmt.Errorf("s3blob: archive round %s bets: %w", r.ID, err)
		}

		rec := roundRecord{
			ID:            r.ID,
			Symbol:        r.Symbol,
			StartTime:     r.StartTime,
			SettledAt:     r.SettledAt,
			Outcome:       r.Outcome,
			PriceDegraded: r.PriceDegraded,
			LockedPrice:   r.LockedPrice,
			ClosedPrice:   r.ClosedPrice,
			UpTotal:       r.Pool.UpTotal,
			DownTotal:     r.Pool.DownTotal,
			TotalPool:     r.Pool.TotalPool,
			TotalPayout:   r.TotalPayout,
			PlatformFee:   r.PlatformFee,
			NetProfit:     r.NetProfit,
			Bets:          make([]betRecord, 0, len(bets)),
		}
		for _, b := range bets {
			rec.Bets = append(rec.Bets, betRecord{
				UserID:    b.UserID,
				Direction: b.Direction,
				Amount:    b.Amount,
				PlacedAt:  b.PlacedAt,
			})
		}

		if err := enc.Encode(rec); err != nil {
			return "", 0, fmt.Errorf("s3blob: archive round %s encode: %w", r.ID, err)
		}
	}

	path := fmt.Sprintf("archive/rounds/%s.jsonl", before.Format("2006-01"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson"); err != nil {
		return "", 0, fmt.Errorf("s3blob: archive rounds upload: %w", err)
	}

	count := len(rounds)

	if err := a.audit.Log(ctx, "archive.rounds", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return path, count, fmt.Errorf("s3blob: archive rounds audit log: %w", err)
	}

	return path, count, nil
}

// Compile-time interface check.
var _ domain.Archiver = (*RoundArchiver)(nil)
