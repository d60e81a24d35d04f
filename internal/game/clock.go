// Package game implements the round state machine and pari-mutuel settlement
// engine: pure phase arithmetic, the in-memory betting pool, settlement math,
// and the orchestrating machine that ties them to the price feed and the
// storage, ledger, and transport collaborators.
package game

import (
	"time"

	"github.com/updowngame/updown/internal/domain"
)

// CurrentPhase derives the phase of a round purely from now against the
// round's stored boundaries. It ignores the round's Phase field so the
// machine can detect boundary crossings.
func CurrentPhase(r domain.Round, now time.Time) domain.RoundPhase {
	switch {
	case now.Before(r.BettingEnd):
		return domain.PhaseBetting
	case now.Before(r.WaitingEnd):
		return domain.PhaseWaiting
	default:
		return domain.PhaseSettling
	}
}

// phaseBoundary returns the end time of the given phase for the round.
func phaseBoundary(r domain.Round, phase domain.RoundPhase) time.Time {
	switch phase {
	case domain.PhaseBetting:
		return r.BettingEnd
	case domain.PhaseWaiting:
		return r.WaitingEnd
	default:
		return r.SettleEnd
	}
}

// RemainingTime returns the non-negative duration until the end of the
// round's current phase. It floors at zero.
func RemainingTime(r domain.Round, now time.Time) time.Duration {
	d := phaseBoundary(r, r.Phase).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ShouldAdvance reports whether the round's current phase has expired, and
// if so which phase comes next. Advancing out of Settling means starting a
// fresh round, so the next phase reported in that case is Betting.
func ShouldAdvance(r domain.Round, now time.Time) (bool, domain.RoundPhase) {
	if RemainingTime(r, now) > 0 {
		return false, r.Phase
	}
	return true, r.Phase.Next()
}
