package game

import (
	"github.com/shopspring/decimal"

	"github.com/updowngame/updown/internal/domain"
)

// payoutPlaces is the scale monetary payouts are rounded to, using banker's
// rounding, when settlement is computed.
const payoutPlaces = 8

// DetermineOutcome resolves a round from its two captured prices. Equal
// prices are a draw: no side wins and the house keeps the pool.
func DetermineOutcome(locked, closed decimal.Decimal) domain.Outcome {
	switch closed.Cmp(locked) {
	case 1:
		return domain.OutcomeUpWin
	case -1:
		return domain.OutcomeDownWin
	default:
		return domain.OutcomeDraw
	}
}

// winningSide maps an outcome to the direction that gets paid. The second
// return is false for outcomes with no winner (draw, void).
func winningSide(outcome domain.Outcome) (domain.Direction, bool) {
	switch outcome {
	case domain.OutcomeUpWin:
		return domain.DirectionUp, true
	case domain.OutcomeDownWin:
		return domain.DirectionDown, true
	default:
		return "", false
	}
}

// ComputeResults produces one BettingResult per bet in the pool. Winning bets
// are paid amount * (totalPool / winningSideTotal) * (1 - feeRate); losing
// bets, and every bet when there is no winning side, pay zero. The fee is
// deducted from payouts, never added on top, so the payouts can never exceed
// the pool.
func ComputeResults(pool domain.PoolSnapshot, outcome domain.Outcome, feeRate decimal.Decimal) []domain.BettingResult {
	results := make([]domain.BettingResult, 0, len(pool.UpBets)+len(pool.DownBets))

	winner, hasWinner := winningSide(outcome)

	var multiplier decimal.Decimal
	if hasWinner {
		winTotal := pool.SideTotal(winner)
		// A side with no stakes cannot win under DetermineOutcome's payout
		// formula, but guard the division anyway.
		if winTotal.IsPositive() {
			multiplier = pool.TotalPool.Div(winTotal)
		} else {
			hasWinner = false
		}
	}

	keep := decimal.NewFromInt(1).Sub(feeRate)
	for _, bet := range pool.Bets() {
		res := domain.BettingResult{
			UserID:    bet.UserID,
			Direction: bet.Direction,
			BetAmount: bet.Amount,
			Payout:    decimal.Zero,
		}
		if hasWinner && bet.Direction == winner {
			res.IsWinner = true
			res.Multiplier = multiplier
			res.Payout = bet.Amount.Mul(multiplier).Mul(keep).RoundBank(payoutPlaces)
		}
		results = append(results, res)
	}

	return results
}

// ComputeFeeDistribution aggregates the winning payouts into the round-level
// money figures: total paid out, the platform fee expressed as a fraction of
// that payout, and the house's net take from the pool.
func ComputeFeeDistribution(results []domain.BettingResult, totalPool, feeRate decimal.Decimal) (totalPayout, platformFee, netProfit decimal.Decimal) {
	totalPayout = decimal.Zero
	for _, r := range results {
		totalPayout = totalPayout.Add(r.Payout)
	}
	platformFee = totalPayout.Mul(feeRate).RoundBank(payoutPlaces)
	netProfit = totalPool.Sub(totalPayout)
	return totalPayout, platformFee, netProfit
}
