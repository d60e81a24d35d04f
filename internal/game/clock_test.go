package game

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/updowngame/updown/internal/domain"
)

func testRound(start time.Time) domain.Round {
	return domain.Round{
		ID:         uuid.New(),
		Symbol:     "BTCUSDT",
		Phase:      domain.PhaseBetting,
		StartTime:  start,
		BettingEnd: start.Add(30 * time.Second),
		WaitingEnd: start.Add(40 * time.Second),
		SettleEnd:  start.Add(50 * time.Second),
	}
}

func TestCurrentPhase(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := testRound(start)

	tests := []struct {
		name string
		at   time.Duration
		want domain.RoundPhase
	}{
		{"round start", 0, domain.PhaseBetting},
		{"mid betting", 15 * time.Second, domain.PhaseBetting},
		{"just before betting end", 30*time.Second - time.Millisecond, domain.PhaseBetting},
		{"at betting end", 30 * time.Second, domain.PhaseWaiting},
		{"mid waiting", 35 * time.Second, domain.PhaseWaiting},
		{"at waiting end", 40 * time.Second, domain.PhaseSettling},
		{"past settle end", 2 * time.Minute, domain.PhaseSettling},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CurrentPhase(r, start.Add(tt.at)); got != tt.want {
				t.Errorf("CurrentPhase at +%v = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestCurrentPhaseMonotonic(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := testRound(start)

	order := map[domain.RoundPhase]int{
		domain.PhaseBetting:  0,
		domain.PhaseWaiting:  1,
		domain.PhaseSettling: 2,
	}

	prev := -1
	for d := time.Duration(0); d <= 60*time.Second; d += 250 * time.Millisecond {
		cur := order[CurrentPhase(r, start.Add(d))]
		if cur < prev {
			t.Fatalf("phase went backwards at +%v", d)
		}
		prev = cur
	}
}

func TestRemainingTime(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("floors at zero", func(t *testing.T) {
		r := testRound(start)
		if got := RemainingTime(r, start.Add(time.Hour)); got != 0 {
			t.Errorf("RemainingTime past boundary = %v, want 0", got)
		}
	})

	t.Run("counts down within phase", func(t *testing.T) {
		r := testRound(start)
		if got := RemainingTime(r, start.Add(10*time.Second)); got != 20*time.Second {
			t.Errorf("RemainingTime = %v, want 20s", got)
		}
	})

	t.Run("uses the round's own phase boundary", func(t *testing.T) {
		r := testRound(start)
		r.Phase = domain.PhaseWaiting
		if got := RemainingTime(r, start.Add(35*time.Second)); got != 5*time.Second {
			t.Errorf("RemainingTime in waiting = %v, want 5s", got)
		}
	})
}

func TestShouldAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		phase     domain.RoundPhase
		at        time.Duration
		want      bool
		wantPhase domain.RoundPhase
	}{
		{"betting not yet", domain.PhaseBetting, 29 * time.Second, false, domain.PhaseBetting},
		{"betting expired", domain.PhaseBetting, 30 * time.Second, true, domain.PhaseWaiting},
		{"waiting expired", domain.PhaseWaiting, 41 * time.Second, true, domain.PhaseSettling},
		{"settling holds", domain.PhaseSettling, 45 * time.Second, false, domain.PhaseSettling},
		{"settling expired starts new round", domain.PhaseSettling, 50 * time.Second, true, domain.PhaseBetting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRound(start)
			r.Phase = tt.phase
			got, next := ShouldAdvance(r, start.Add(tt.at))
			if got != tt.want || next != tt.wantPhase {
				t.Errorf("ShouldAdvance = (%v, %v), want (%v, %v)", got, next, tt.want, tt.wantPhase)
			}
		})
	}
}
