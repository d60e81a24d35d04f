package game

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/updowngame/updown/internal/domain"
)

// Pool accumulates the stakes of a single round. All mutation goes through
// PlaceBet under an exclusive critical section held by the machine; totals
// are derived from the bet lists and never set independently.
//
// The pool is opened in the Betting phase and closed exactly once when the
// round leaves it; a closed pool rejects every further bet.
type Pool struct {
	roundID uuid.UUID
	minBet  decimal.Decimal

	open      bool
	upBets    []domain.Bet
	downBets  []domain.Bet
	upTotal   decimal.Decimal
	downTotal decimal.Decimal
	byUser    map[string]domain.Bet
}

// NewPool creates an open pool for the given round.
func NewPool(roundID uuid.UUID, minBet decimal.Decimal) *Pool {
	return &Pool{
		roundID:   roundID,
		minBet:    minBet,
		open:      true,
		upTotal:   decimal.Zero,
		downTotal: decimal.Zero,
		byUser:    make(map[string]domain.Bet),
	}
}

// PlaceBet validates and appends a bet, updating the side total atomically
// with the append. It fails with domain.ErrInvalidPhase when the pool is
// closed, domain.ErrBelowMinimum when amount < the configured minimum, and
// domain.ErrDuplicateBet when the user already bet this round.
func (p *Pool) PlaceBet(userID string, dir domain.Direction, amount decimal.Decimal, now time.Time) (domain.Bet, error) {
	if !p.open {
		return domain.Bet{}, domain.ErrInvalidPhase
	}
	if !dir.Valid() {
		return domain.Bet{}, fmt.Errorf("pool: unknown direction %q", dir)
	}
	if amount.LessThan(p.minBet) {
		return domain.Bet{}, domain.ErrBelowMinimum
	}
	if _, ok := p.byUser[userID]; ok {
		return domain.Bet{}, domain.ErrDuplicateBet
	}

	bet := domain.Bet{
		ID:        uuid.New(),
		RoundID:   p.roundID,
		UserID:    userID,
		Direction: dir,
		Amount:    amount,
		PlacedAt:  now,
	}

	if dir == domain.DirectionUp {
		p.upBets = append(p.upBets, bet)
		p.upTotal = p.upTotal.Add(amount)
	} else {
		p.downBets = append(p.downBets, bet)
		p.downTotal = p.downTotal.Add(amount)
	}
	p.byUser[userID] = bet

	return bet, nil
}

// Remove deletes a user's bet and reverses its contribution to the totals.
// It is the rollback path for a failed ledger debit and reports whether a
// bet was actually removed.
func (p *Pool) Remove(userID string) bool {
	bet, ok := p.byUser[userID]
	if !ok {
		return false
	}
	delete(p.byUser, userID)

	if bet.Direction == domain.DirectionUp {
		p.upBets = removeBet(p.upBets, bet.ID)
		p.upTotal = p.upTotal.Sub(bet.Amount)
	} else {
		p.downBets = removeBet(p.downBets, bet.ID)
		p.downTotal = p.downTotal.Sub(bet.Amount)
	}
	return true
}

func removeBet(bets []domain.Bet, id uuid.UUID) []domain.Bet {
	for i, b := range bets {
		if b.ID == id {
			return append(bets[:i], bets[i+1:]...)
		}
	}
	return bets
}

// FindUserBet returns the user's bet in this round, if any.
func (p *Pool) FindUserBet(userID string) (domain.Bet, bool) {
	bet, ok := p.byUser[userID]
	return bet, ok
}

// Odds returns totalPool / sideTotal for the given side, or zero when no one
// has bet that side yet. Odds float with the pool until settlement; the
// multiplier actually paid is recomputed from the final totals.
func (p *Pool) Odds(dir domain.Direction) decimal.Decimal {
	side := p.upTotal
	if dir == domain.DirectionDown {
		side = p.downTotal
	}
	if side.IsZero() {
		return decimal.Zero
	}
	return p.Total().Div(side)
}

// Total returns the combined pool size.
func (p *Pool) Total() decimal.Decimal {
	return p.upTotal.Add(p.downTotal)
}

// BetCount returns the number of bets placed so far.
func (p *Pool) BetCount() int {
	return len(p.byUser)
}

// Close freezes the pool; subsequent PlaceBet calls fail with
// domain.ErrInvalidPhase. Closing twice is a no-op.
func (p *Pool) Close() {
	p.open = false
}

// Snapshot returns an immutable copy of the pool suitable for settlement and
// persistence.
func (p *Pool) Snapshot() domain.PoolSnapshot {
	up := make([]domain.Bet, len(p.upBets))
	copy(up, p.upBets)
	down := make([]domain.Bet, len(p.downBets))
	copy(down, p.downBets)

	return domain.PoolSnapshot{
		UpBets:    up,
		DownBets:  down,
		UpTotal:   p.upTotal,
		DownTotal: p.downTotal,
		TotalPool: p.upTotal.Add(p.downTotal),
	}
}
