package game

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/updowngame/updown/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestPool() *Pool {
	return NewPool(uuid.New(), dec("1"))
}

func TestPoolPlaceBet(t *testing.T) {
	now := time.Now()

	t.Run("accepts valid bets and derives totals", func(t *testing.T) {
		p := newTestPool()
		if _, err := p.PlaceBet("alice", domain.DirectionUp, dec("10"), now); err != nil {
			t.Fatalf("PlaceBet: %v", err)
		}
		if _, err := p.PlaceBet("bob", domain.DirectionDown, dec("30"), now); err != nil {
			t.Fatalf("PlaceBet: %v", err)
		}

		snap := p.Snapshot()
		if !snap.UpTotal.Equal(dec("10")) || !snap.DownTotal.Equal(dec("30")) {
			t.Errorf("totals = %s/%s, want 10/30", snap.UpTotal, snap.DownTotal)
		}
		if !snap.TotalPool.Equal(snap.UpTotal.Add(snap.DownTotal)) {
			t.Errorf("total pool %s != up+down %s", snap.TotalPool, snap.UpTotal.Add(snap.DownTotal))
		}
	})

	t.Run("rejects below minimum", func(t *testing.T) {
		p := newTestPool()
		if _, err := p.PlaceBet("alice", domain.DirectionUp, dec("0.5"), now); !errors.Is(err, domain.ErrBelowMinimum) {
			t.Errorf("err = %v, want ErrBelowMinimum", err)
		}
	})

	t.Run("rejects duplicate user", func(t *testing.T) {
		p := newTestPool()
		if _, err := p.PlaceBet("alice", domain.DirectionUp, dec("10"), now); err != nil {
			t.Fatalf("first bet: %v", err)
		}
		if _, err := p.PlaceBet("alice", domain.DirectionDown, dec("5"), now); !errors.Is(err, domain.ErrDuplicateBet) {
			t.Errorf("err = %v, want ErrDuplicateBet", err)
		}
	})

	t.Run("rejects after close", func(t *testing.T) {
		p := newTestPool()
		p.Close()
		if _, err := p.PlaceBet("alice", domain.DirectionUp, dec("10"), now); !errors.Is(err, domain.ErrInvalidPhase) {
			t.Errorf("err = %v, want ErrInvalidPhase", err)
		}
	})
}

func TestPoolConservation(t *testing.T) {
	now := time.Now()
	p := newTestPool()

	amounts := []string{"1", "2.5", "10", "0.001", "99.99", "7"}
	dirs := []domain.Direction{
		domain.DirectionUp, domain.DirectionDown, domain.DirectionUp,
		domain.DirectionUp, domain.DirectionDown, domain.DirectionDown,
	}

	sum := decimal.Zero
	for i, a := range amounts {
		amt := dec(a)
		if amt.LessThan(dec("1")) {
			// Below-minimum bets must not move the totals.
			if _, err := p.PlaceBet(uuid.NewString(), dirs[i], amt, now); !errors.Is(err, domain.ErrBelowMinimum) {
				t.Fatalf("expected ErrBelowMinimum for %s", a)
			}
			continue
		}
		if _, err := p.PlaceBet(uuid.NewString(), dirs[i], amt, now); err != nil {
			t.Fatalf("PlaceBet(%s): %v", a, err)
		}
		sum = sum.Add(amt)
	}

	snap := p.Snapshot()
	if !snap.TotalPool.Equal(sum) {
		t.Errorf("total pool = %s, want %s", snap.TotalPool, sum)
	}
	betSum := decimal.Zero
	for _, b := range snap.Bets() {
		betSum = betSum.Add(b.Amount)
	}
	if !betSum.Equal(snap.TotalPool) {
		t.Errorf("sum of bets = %s, want %s", betSum, snap.TotalPool)
	}
}

func TestPoolRemove(t *testing.T) {
	now := time.Now()
	p := newTestPool()
	p.PlaceBet("alice", domain.DirectionUp, dec("10"), now)
	p.PlaceBet("bob", domain.DirectionUp, dec("5"), now)

	if !p.Remove("alice") {
		t.Fatal("Remove returned false for existing bet")
	}
	if p.Remove("alice") {
		t.Fatal("Remove returned true for already-removed bet")
	}

	snap := p.Snapshot()
	if !snap.UpTotal.Equal(dec("5")) || !snap.TotalPool.Equal(dec("5")) {
		t.Errorf("after remove: up=%s total=%s, want 5/5", snap.UpTotal, snap.TotalPool)
	}
	if _, ok := p.FindUserBet("alice"); ok {
		t.Error("FindUserBet still returns removed bet")
	}
	// The user may bet again after a rollback.
	if _, err := p.PlaceBet("alice", domain.DirectionDown, dec("3"), now); err != nil {
		t.Errorf("re-bet after remove: %v", err)
	}
}

func TestPoolOdds(t *testing.T) {
	now := time.Now()
	p := newTestPool()

	if !p.Odds(domain.DirectionUp).IsZero() {
		t.Error("odds on empty side should be zero")
	}

	p.PlaceBet("alice", domain.DirectionUp, dec("10"), now)
	p.PlaceBet("bob", domain.DirectionDown, dec("30"), now)

	if got := p.Odds(domain.DirectionUp); !got.Equal(dec("4")) {
		t.Errorf("up odds = %s, want 4", got)
	}
	if got := p.Odds(domain.DirectionDown); !got.Round(4).Equal(dec("1.3333")) {
		t.Errorf("down odds = %s, want ~1.3333", got)
	}

	// Odds float with the pool: a later bet changes both sides' multipliers.
	p.PlaceBet("carol", domain.DirectionUp, dec("10"), now)
	if got := p.Odds(domain.DirectionUp); !got.Equal(dec("2.5")) {
		t.Errorf("up odds after new bet = %s, want 2.5", got)
	}
}
