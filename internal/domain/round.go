// Package domain defines the core types and collaborator contracts for the
// up/down price-prediction game: rounds, bets, pari-mutuel results, price
// ticks, and the store/cache interfaces implemented by the infrastructure
// packages.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RoundPhase is the lifecycle phase of a round. Phases advance strictly
// forward: Betting -> Waiting -> Settling.
type RoundPhase string

const (
	PhaseBetting  RoundPhase = "betting"
	PhaseWaiting  RoundPhase = "waiting"
	PhaseSettling RoundPhase = "settling"
)

// Next returns the phase that follows p. After Settling the machine starts a
// fresh round, so Next(Settling) is Betting.
func (p RoundPhase) Next() RoundPhase {
	switch p {
	case PhaseBetting:
		return PhaseWaiting
	case PhaseWaiting:
		return PhaseSettling
	default:
		return PhaseBetting
	}
}

// Outcome is the resolved result of a round.
type Outcome string

const (
	OutcomeUpWin   Outcome = "up_win"
	OutcomeDownWin Outcome = "down_win"
	// OutcomeDraw means the closed price equals the locked price; the house
	// keeps the entire pool.
	OutcomeDraw Outcome = "draw"
	// OutcomeVoid marks a round that could not be settled fairly (missing
	// price at a boundary). All stakes are refunded.
	OutcomeVoid Outcome = "void"
)

// Round is one complete betting cycle for a single symbol. Exactly one round
// is active per machine; it is owned by the state machine while active and
// becomes immutable once Outcome is set.
type Round struct {
	ID     uuid.UUID
	Symbol string
	Phase  RoundPhase

	StartTime  time.Time
	BettingEnd time.Time
	WaitingEnd time.Time
	SettleEnd  time.Time

	LockedPrice *decimal.Decimal
	LockedAt    *time.Time
	ClosedPrice *decimal.Decimal
	ClosedAt    *time.Time

	// PriceDegraded is set when a phase boundary was crossed with no live
	// tick available. A degraded round is voided, never settled.
	PriceDegraded bool

	Outcome     Outcome
	Pool        PoolSnapshot
	TotalPayout decimal.Decimal
	PlatformFee decimal.Decimal
	NetProfit   decimal.Decimal

	CreatedAt time.Time
	SettledAt *time.Time
}

// Settled reports whether the round has been finalized.
func (r Round) Settled() bool {
	return r.Outcome != ""
}

// PoolSnapshot is an immutable copy of a round's betting pool. Totals are
// derived from the bet lists and must satisfy
// TotalPool == UpTotal + DownTotal == sum of all bet amounts.
type PoolSnapshot struct {
	UpBets    []Bet
	DownBets  []Bet
	UpTotal   decimal.Decimal
	DownTotal decimal.Decimal
	TotalPool decimal.Decimal
}

// SideTotal returns the total staked on the given side.
func (p PoolSnapshot) SideTotal(dir Direction) decimal.Decimal {
	if dir == DirectionUp {
		return p.UpTotal
	}
	return p.DownTotal
}

// Bets returns both sides' bets in a single slice, up side first.
func (p PoolSnapshot) Bets() []Bet {
	out := make([]Bet, 0, len(p.UpBets)+len(p.DownBets))
	out = append(out, p.UpBets...)
	return append(out, p.DownBets...)
}

// BettingResult is the per-bet settlement outcome. The results of a round
// exactly partition its pool: one result per bet, losers with zero payout.
type BettingResult struct {
	UserID     string
	Direction  Direction
	BetAmount  decimal.Decimal
	IsWinner   bool
	Payout     decimal.Decimal
	Multiplier decimal.Decimal
}

// RoundSnapshot is the read-only view of the active round broadcast to
// clients after every machine tick.
type RoundSnapshot struct {
	RoundID       uuid.UUID        `json:"round_id"`
	Symbol        string           `json:"symbol"`
	Phase         RoundPhase       `json:"phase"`
	Remaining     time.Duration    `json:"remaining_ms"`
	UpTotal       decimal.Decimal  `json:"up_total"`
	DownTotal     decimal.Decimal  `json:"down_total"`
	TotalPool     decimal.Decimal  `json:"total_pool"`
	UpOdds        decimal.Decimal  `json:"up_odds"`
	DownOdds      decimal.Decimal  `json:"down_odds"`
	BetCount      int              `json:"bet_count"`
	LockedPrice   *decimal.Decimal `json:"locked_price,omitempty"`
	LatestPrice   *decimal.Decimal `json:"latest_price,omitempty"`
	PriceDegraded bool             `json:"price_degraded,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}
