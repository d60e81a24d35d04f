package game

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/updowngame/updown/internal/domain"
)

// poolOf builds a snapshot with one up bet and one down bet.
func poolOf(t *testing.T, upAmount, downAmount string) domain.PoolSnapshot {
	t.Helper()
	p := NewPool(uuid.New(), dec("1"))
	now := time.Now()
	if upAmount != "" {
		if _, err := p.PlaceBet("userA", domain.DirectionUp, dec(upAmount), now); err != nil {
			t.Fatalf("up bet: %v", err)
		}
	}
	if downAmount != "" {
		if _, err := p.PlaceBet("userB", domain.DirectionDown, dec(downAmount), now); err != nil {
			t.Fatalf("down bet: %v", err)
		}
	}
	return p.Snapshot()
}

func TestDetermineOutcome(t *testing.T) {
	tests := []struct {
		name   string
		locked string
		closed string
		want   domain.Outcome
	}{
		{"up win", "100", "105", domain.OutcomeUpWin},
		{"down win", "100", "95", domain.OutcomeDownWin},
		{"draw on equal", "100", "100", domain.OutcomeDraw},
		{"draw on equal with different scale", "100.00", "100", domain.OutcomeDraw},
		{"tiny move up", "100", "100.00000001", domain.OutcomeUpWin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineOutcome(dec(tt.locked), dec(tt.closed)); got != tt.want {
				t.Errorf("DetermineOutcome(%s, %s) = %v, want %v", tt.locked, tt.closed, got, tt.want)
			}
		})
	}
}

func TestComputeResultsUpWin(t *testing.T) {
	// minBet=1, feeRate=0.03, A bets 10 UP, B bets 30 DOWN, closed > locked.
	pool := poolOf(t, "10", "30")
	results := ComputeResults(pool, domain.OutcomeUpWin, dec("0.03"))

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	byUser := map[string]domain.BettingResult{}
	for _, r := range results {
		byUser[r.UserID] = r
	}

	a := byUser["userA"]
	if !a.IsWinner {
		t.Error("userA should win")
	}
	if !a.Multiplier.Equal(dec("4")) {
		t.Errorf("userA multiplier = %s, want 4", a.Multiplier)
	}
	if !a.Payout.Equal(dec("38.8")) {
		t.Errorf("userA payout = %s, want 38.8", a.Payout)
	}

	b := byUser["userB"]
	if b.IsWinner || !b.Payout.IsZero() {
		t.Errorf("userB = winner=%v payout=%s, want loser with 0", b.IsWinner, b.Payout)
	}

	totalPayout, platformFee, netProfit := ComputeFeeDistribution(results, pool.TotalPool, dec("0.03"))
	if !totalPayout.Equal(dec("38.8")) {
		t.Errorf("totalPayout = %s, want 38.8", totalPayout)
	}
	if !platformFee.Equal(dec("1.164")) {
		t.Errorf("platformFee = %s, want 1.164", platformFee)
	}
	if !netProfit.Equal(dec("1.2")) {
		t.Errorf("netProfit = %s, want 1.2", netProfit)
	}
}

func TestComputeResultsDownWin(t *testing.T) {
	pool := poolOf(t, "10", "30")
	results := ComputeResults(pool, domain.OutcomeDownWin, dec("0.03"))

	for _, r := range results {
		switch r.UserID {
		case "userB":
			if !r.IsWinner {
				t.Error("userB should win")
			}
			// 30 * (40/30) * 0.97 = 38.8
			if !r.Payout.Equal(dec("38.8")) {
				t.Errorf("userB payout = %s, want 38.8", r.Payout)
			}
		case "userA":
			if r.IsWinner || !r.Payout.IsZero() {
				t.Errorf("userA should lose with zero payout, got winner=%v payout=%s", r.IsWinner, r.Payout)
			}
		}
	}
}

func TestComputeResultsDraw(t *testing.T) {
	pool := poolOf(t, "10", "30")
	results := ComputeResults(pool, domain.OutcomeDraw, dec("0.03"))

	for _, r := range results {
		if r.IsWinner || !r.Payout.IsZero() {
			t.Errorf("%s: draw must pay zero, got winner=%v payout=%s", r.UserID, r.IsWinner, r.Payout)
		}
	}

	totalPayout, _, netProfit := ComputeFeeDistribution(results, pool.TotalPool, dec("0.03"))
	if !totalPayout.IsZero() {
		t.Errorf("draw totalPayout = %s, want 0", totalPayout)
	}
	if !netProfit.Equal(pool.TotalPool) {
		t.Errorf("draw netProfit = %s, want full pool %s", netProfit, pool.TotalPool)
	}
}

func TestComputeResultsOneSidedPool(t *testing.T) {
	// Everyone bet up and up wins: multiplier is exactly 1, each winner gets
	// their own stake back minus the fee.
	p := NewPool(uuid.New(), dec("1"))
	now := time.Now()
	p.PlaceBet("userA", domain.DirectionUp, dec("10"), now)
	p.PlaceBet("userC", domain.DirectionUp, dec("40"), now)
	pool := p.Snapshot()

	results := ComputeResults(pool, domain.OutcomeUpWin, dec("0.03"))
	for _, r := range results {
		if !r.IsWinner {
			t.Fatalf("%s should win in one-sided pool", r.UserID)
		}
		if !r.Multiplier.Equal(dec("1")) {
			t.Errorf("%s multiplier = %s, want 1", r.UserID, r.Multiplier)
		}
		want := r.BetAmount.Mul(dec("0.97"))
		if !r.Payout.Equal(want) {
			t.Errorf("%s payout = %s, want %s", r.UserID, r.Payout, want)
		}
	}
}

func TestSettlementPartitionsPool(t *testing.T) {
	tests := []struct {
		name    string
		up      string
		down    string
		feeRate string
		outcome domain.Outcome
	}{
		{"up win with fee", "10", "30", "0.03", domain.OutcomeUpWin},
		{"down win with fee", "17.35", "42.01", "0.05", domain.OutcomeDownWin},
		{"zero fee", "10", "30", "0", domain.OutcomeUpWin},
		{"uneven amounts", "3.33", "6.67", "0.03", domain.OutcomeDownWin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := poolOf(t, tt.up, tt.down)
			fee := dec(tt.feeRate)
			results := ComputeResults(pool, tt.outcome, fee)

			sum := decimal.Zero
			for _, r := range results {
				sum = sum.Add(r.Payout)
			}
			if sum.GreaterThan(pool.TotalPool) {
				t.Errorf("payouts %s exceed pool %s", sum, pool.TotalPool)
			}
			if fee.IsZero() {
				// With no fee the winners receive the entire pool (up to the
				// settlement rounding scale).
				if !sum.Sub(pool.TotalPool).Abs().LessThan(dec("0.0000001")) {
					t.Errorf("zero-fee payouts %s != pool %s", sum, pool.TotalPool)
				}
			}
		})
	}
}

func TestComputeResultsVoid(t *testing.T) {
	pool := poolOf(t, "10", "30")
	results := ComputeResults(pool, domain.OutcomeVoid, dec("0.03"))
	for _, r := range results {
		if r.IsWinner || !r.Payout.IsZero() {
			t.Errorf("void round must produce zero payouts, got winner=%v payout=%s", r.IsWinner, r.Payout)
		}
	}
}
