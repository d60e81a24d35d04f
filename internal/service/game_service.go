// Package service coordinates the game machine, stores and caches behind the
// HTTP handlers. Handlers depend on these types through their own narrow
// interfaces, never on the machine or stores directly.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/updowngame/updown/internal/domain"
	"github.com/updowngame/updown/internal/game"
)

// GameService exposes betting and round queries. In observer mode the machine
// is nil and round reads come from the snapshot cache written by the process
// that runs the game.
type GameService struct {
	machine    *game.Machine
	rounds     domain.RoundStore
	bets       domain.BetStore
	ledger     domain.Ledger
	roundCache domain.RoundCache
	logger     *slog.Logger
}

// NewGameService creates a GameService. machine may be nil for read-only
// deployments.
func NewGameService(
	machine *game.Machine,
	rounds domain.RoundStore,
	bets domain.BetStore,
	ledger domain.Ledger,
	roundCache domain.RoundCache,
	logger *slog.Logger,
) *GameService {
	return &GameService{
		machine:    machine,
		rounds:     rounds,
		bets:       bets,
		ledger:     ledger,
		roundCache: roundCache,
		logger:     logger.With(slog.String("component", "game_service")),
	}
}

// PlaceBet places a bet on the active round. It returns
// domain.ErrInvalidPhase when this process does not run the game machine.
func (s *GameService) PlaceBet(ctx context.Context, userID string, dir domain.Direction, amount decimal.Decimal) (domain.Bet, error) {
	if s.machine == nil {
		return domain.Bet{}, fmt.Errorf("game_service: no machine in this process: %w", domain.ErrInvalidPhase)
	}
	return s.machine.PlaceBet(ctx, userID, dir, amount)
}

// CurrentSnapshot returns the live round view. The local machine is
// authoritative when present; otherwise the Redis snapshot is used.
func (s *GameService) CurrentSnapshot(ctx context.Context, symbol string) (domain.RoundSnapshot, error) {
	if s.machine != nil {
		return s.machine.CurrentRound(), nil
	}
	snap, err := s.roundCache.GetSnapshot(ctx, symbol)
	if err != nil {
		return domain.RoundSnapshot{}, fmt.Errorf("game_service: current snapshot: %w", err)
	}
	return snap, nil
}

// GetRound returns a round by ID from the store.
func (s *GameService) GetRound(ctx context.Context, id uuid.UUID) (domain.Round, error) {
	return s.rounds.GetByID(ctx, id)
}

// ListSettled returns settled round history.
func (s *GameService) ListSettled(ctx context.Context, opts domain.ListOpts) ([]domain.Round, error) {
	return s.rounds.ListSettled(ctx, opts)
}

// CountRounds returns the total number of rounds.
func (s *GameService) CountRounds(ctx context.Context) (int64, error) {
	return s.rounds.Count(ctx)
}

// RoundBets returns the bets of a round.
func (s *GameService) RoundBets(ctx context.Context, roundID uuid.UUID) ([]domain.Bet, error) {
	return s.bets.ListByRound(ctx, roundID)
}

// UserBets returns a user's bet history.
func (s *GameService) UserBets(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	return s.bets.ListByUser(ctx, userID, opts)
}

// Balance returns a user's wallet balance.
func (s *GameService) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.ledger.Balance(ctx, userID)
}

// Deposit credits a user's wallet.
func (s *GameService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("game_service: deposit must be positive")
	}
	if err := s.ledger.Credit(ctx, userID, amount); err != nil {
		return decimal.Zero, fmt.Errorf("game_service: deposit: %w", err)
	}
	return s.ledger.Balance(ctx, userID)
}
