package game

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/updowngame/updown/internal/domain"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type fakeRoundStore struct {
	mu    sync.Mutex
	saved map[uuid.UUID]domain.Round
}

func newFakeRoundStore() *fakeRoundStore {
	return &fakeRoundStore{saved: make(map[uuid.UUID]domain.Round)}
}

func (s *fakeRoundStore) Save(ctx context.Context, r domain.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[r.ID] = r
	return nil
}

func (s *fakeRoundStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.saved[id]
	if !ok {
		return domain.Round{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *fakeRoundStore) ListSettled(ctx context.Context, opts domain.ListOpts) ([]domain.Round, error) {
	return nil, nil
}

func (s *fakeRoundStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Round, error) {
	return nil, nil
}

func (s *fakeRoundStore) Count(ctx context.Context) (int64, error) { return 0, nil }

type fakeBetStore struct {
	mu      sync.Mutex
	saved   []domain.Bet
	results map[uuid.UUID][]domain.BettingResult
}

func newFakeBetStore() *fakeBetStore {
	return &fakeBetStore{results: make(map[uuid.UUID][]domain.BettingResult)}
}

func (s *fakeBetStore) Save(ctx context.Context, bet domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, bet)
	return nil
}

func (s *fakeBetStore) UpdateResults(ctx context.Context, roundID uuid.UUID, results []domain.BettingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[roundID] = results
	return nil
}

func (s *fakeBetStore) ListByRound(ctx context.Context, roundID uuid.UUID) ([]domain.Bet, error) {
	return nil, nil
}

func (s *fakeBetStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	return nil, nil
}

type ledgerEntry struct {
	userID string
	amount decimal.Decimal
}

type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	debits   []ledgerEntry
	credits  []ledgerEntry
}

func newFakeLedger(balances map[string]string) *fakeLedger {
	l := &fakeLedger{balances: make(map[string]decimal.Decimal)}
	for u, b := range balances {
		l.balances[u] = decimal.RequireFromString(b)
	}
	return l
}

func (l *fakeLedger) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[userID]
	if !ok || bal.LessThan(amount) {
		return domain.ErrInsufficientBalance
	}
	l.balances[userID] = bal.Sub(amount)
	l.debits = append(l.debits, ledgerEntry{userID, amount})
	return nil
}

func (l *fakeLedger) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = l.balances[userID].Add(amount)
	l.credits = append(l.credits, ledgerEntry{userID, amount})
	return nil
}

func (l *fakeLedger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *fakeLedger) creditFor(userID string) (decimal.Decimal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.credits {
		if c.userID == userID {
			return c.amount, true
		}
	}
	return decimal.Zero, false
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type machineHarness struct {
	m      *Machine
	rounds *fakeRoundStore
	bets   *fakeBetStore
	ledger *fakeLedger

	mu  sync.Mutex
	now time.Time
}

func newMachineHarness(t *testing.T, balances map[string]string) *machineHarness {
	t.Helper()

	h := &machineHarness{
		rounds: newFakeRoundStore(),
		bets:   newFakeBetStore(),
		ledger: newFakeLedger(balances),
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	m, err := NewMachine(Config{
		Symbol:           "BTCUSDT",
		BettingDuration:  30 * time.Second,
		WaitingDuration:  10 * time.Second,
		SettlingDuration: 10 * time.Second,
		FeeRate:          dec("0.03"),
		MinBet:           dec("1"),
	}, Deps{
		Rounds: h.rounds,
		Bets:   h.bets,
		Ledger: h.ledger,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	m.now = func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	}
	h.m = m

	m.mu.Lock()
	m.startRound(h.now)
	m.mu.Unlock()

	return h
}

func (h *machineHarness) advance(d time.Duration) {
	h.mu.Lock()
	h.now = h.now.Add(d)
	h.mu.Unlock()
	h.m.step(context.Background())
}

func (h *machineHarness) tick(price string) {
	h.mu.Lock()
	now := h.now
	h.mu.Unlock()
	h.m.HandleTick(context.Background(), domain.PriceTick{
		Symbol:    "BTCUSDT",
		Price:     dec(price),
		EventTime: now,
	})
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestMachinePlaceBetDebitsLedger(t *testing.T) {
	h := newMachineHarness(t, map[string]string{"alice": "100"})

	bet, err := h.m.PlaceBet(context.Background(), "alice", domain.DirectionUp, dec("10"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if bet.UserID != "alice" || !bet.Amount.Equal(dec("10")) {
		t.Errorf("bet = %+v", bet)
	}

	bal, _ := h.ledger.Balance(context.Background(), "alice")
	if !bal.Equal(dec("90")) {
		t.Errorf("balance after debit = %s, want 90", bal)
	}
	if len(h.bets.saved) != 1 {
		t.Errorf("bet not persisted, saved=%d", len(h.bets.saved))
	}
}

func TestMachinePlaceBetDebitFailureLeavesNoPartialState(t *testing.T) {
	h := newMachineHarness(t, map[string]string{"alice": "5"})

	_, err := h.m.PlaceBet(context.Background(), "alice", domain.DirectionUp, dec("10"))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	if _, ok := h.m.FindUserBet("alice"); ok {
		t.Error("failed debit left the bet in the pool")
	}
	snap := h.m.CurrentRound()
	if !snap.TotalPool.IsZero() {
		t.Errorf("pool total = %s, want 0", snap.TotalPool)
	}
	// The user may retry once funded.
	h.ledger.Credit(context.Background(), "alice", dec("20"))
	if _, err := h.m.PlaceBet(context.Background(), "alice", domain.DirectionUp, dec("10")); err != nil {
		t.Errorf("retry after funding: %v", err)
	}
}

func TestMachineRejectsBetsOutsideBettingPhase(t *testing.T) {
	h := newMachineHarness(t, map[string]string{"alice": "100"})
	h.tick("50000")
	h.advance(30 * time.Second) // betting -> waiting

	if _, err := h.m.PlaceBet(context.Background(), "alice", domain.DirectionUp, dec("10")); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Errorf("err = %v, want ErrInvalidPhase", err)
	}
}

func TestMachineFullRoundUpWin(t *testing.T) {
	h := newMachineHarness(t, map[string]string{"alice": "100", "bob": "100"})
	ctx := context.Background()

	if _, err := h.m.PlaceBet(ctx, "alice", domain.DirectionUp, dec("10")); err != nil {
		t.Fatalf("alice bet: %v", err)
	}
	if _, err := h.m.PlaceBet(ctx, "bob", domain.DirectionDown, dec("30")); err != nil {
		t.Fatalf("bob bet: %v", err)
	}

	h.advance(28 * time.Second)
	h.tick("100")
	h.advance(2 * time.Second) // lock price 100
	h.advance(8 * time.Second)
	h.tick("105")
	h.advance(2 * time.Second) // close price 105, settle
	h.m.wg.Wait()

	snap := h.m.CurrentRound()
	if snap.Phase != domain.PhaseSettling {
		t.Errorf("phase = %v, want settling", snap.Phase)
	}

	h.rounds.mu.Lock()
	var settled *domain.Round
	for _, r := range h.rounds.saved {
		if r.Settled() {
			rr := r
			settled = &rr
		}
	}
	h.rounds.mu.Unlock()

	if settled == nil {
		t.Fatal("no settled round persisted")
	}
	if settled.Outcome != domain.OutcomeUpWin {
		t.Errorf("outcome = %v, want up_win", settled.Outcome)
	}
	if !settled.TotalPayout.Equal(dec("38.8")) {
		t.Errorf("total payout = %s, want 38.8", settled.TotalPayout)
	}
	if !settled.NetProfit.Equal(dec("1.2")) {
		t.Errorf("net profit = %s, want 1.2", settled.NetProfit)
	}

	credit, ok := h.ledger.creditFor("alice")
	if !ok || !credit.Equal(dec("38.8")) {
		t.Errorf("alice credit = %s (ok=%v), want 38.8", credit, ok)
	}
	if _, ok := h.ledger.creditFor("bob"); ok {
		t.Error("bob (loser) must not be credited")
	}

	if results := h.bets.results[settled.ID]; len(results) != 2 {
		t.Errorf("persisted results = %d, want 2", len(results))
	}

	// Settling window over: a fresh round starts.
	h.advance(10 * time.Second)
	next := h.m.CurrentRound()
	if next.Phase != domain.PhaseBetting || next.RoundID == settled.ID {
		t.Errorf("next round = %+v, want new betting round", next)
	}
}

func TestMachineVoidsDegradedRound(t *testing.T) {
	// No ticks ever arrive: the round still advances on time, but is voided
	// and stakes refunded at settlement.
	h := newMachineHarness(t, map[string]string{"alice": "100"})
	ctx := context.Background()

	if _, err := h.m.PlaceBet(ctx, "alice", domain.DirectionUp, dec("10")); err != nil {
		t.Fatalf("bet: %v", err)
	}

	h.advance(30 * time.Second)
	snap := h.m.CurrentRound()
	if snap.Phase != domain.PhaseWaiting {
		t.Fatalf("phase = %v, want waiting (time must not stall)", snap.Phase)
	}
	if !snap.PriceDegraded {
		t.Error("round should be flagged price-degraded")
	}

	h.advance(10 * time.Second)
	h.m.wg.Wait()

	h.rounds.mu.Lock()
	var settled *domain.Round
	for _, r := range h.rounds.saved {
		if r.Settled() {
			rr := r
			settled = &rr
		}
	}
	h.rounds.mu.Unlock()

	if settled == nil || settled.Outcome != domain.OutcomeVoid {
		t.Fatalf("round not voided: %+v", settled)
	}

	refund, ok := h.ledger.creditFor("alice")
	if !ok || !refund.Equal(dec("10")) {
		t.Errorf("refund = %s (ok=%v), want 10", refund, ok)
	}
}

func TestMachineVoidsRoundWhenFeedGoesStale(t *testing.T) {
	// One tick at round start, then silence. The frozen price must not lock
	// or close later boundaries: the round is degraded and voided, never
	// settled as a price-unchanged draw.
	h := newMachineHarness(t, map[string]string{"alice": "100"})
	ctx := context.Background()

	h.tick("50000")
	if _, err := h.m.PlaceBet(ctx, "alice", domain.DirectionUp, dec("10")); err != nil {
		t.Fatalf("bet: %v", err)
	}

	h.advance(30 * time.Second) // tick is 30s old at betting close
	snap := h.m.CurrentRound()
	if !snap.PriceDegraded {
		t.Error("stale tick at betting close must degrade the round")
	}

	h.advance(10 * time.Second)
	h.m.wg.Wait()

	h.rounds.mu.Lock()
	var settled *domain.Round
	for _, r := range h.rounds.saved {
		if r.Settled() {
			rr := r
			settled = &rr
		}
	}
	h.rounds.mu.Unlock()

	if settled == nil {
		t.Fatal("no settled round persisted")
	}
	if settled.Outcome != domain.OutcomeVoid {
		t.Errorf("outcome = %v, want void", settled.Outcome)
	}
	if !settled.PriceDegraded {
		t.Error("settled round must carry the degraded flag")
	}
	if !settled.NetProfit.IsZero() {
		t.Errorf("net profit = %s, want 0 (house must not keep a voided pool)", settled.NetProfit)
	}

	refund, ok := h.ledger.creditFor("alice")
	if !ok || !refund.Equal(dec("10")) {
		t.Errorf("refund = %s (ok=%v), want 10", refund, ok)
	}
}

func TestMachineConcurrentBetsConserveThePool(t *testing.T) {
	balances := make(map[string]string)
	users := make([]string, 50)
	for i := range users {
		users[i] = uuid.NewString()
		balances[users[i]] = "1000"
	}
	h := newMachineHarness(t, balances)

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		dir := domain.DirectionUp
		if i%2 == 1 {
			dir = domain.DirectionDown
		}
		go func(u string, dir domain.Direction) {
			defer wg.Done()
			if _, err := h.m.PlaceBet(context.Background(), u, dir, dec("7")); err != nil {
				t.Errorf("PlaceBet(%s): %v", u, err)
			}
		}(u, dir)
	}
	wg.Wait()

	snap := h.m.CurrentRound()
	want := dec("7").Mul(decimal.NewFromInt(int64(len(users))))
	if !snap.TotalPool.Equal(want) {
		t.Errorf("total pool = %s, want %s", snap.TotalPool, want)
	}
	if !snap.TotalPool.Equal(snap.UpTotal.Add(snap.DownTotal)) {
		t.Error("pool conservation violated")
	}
}

func TestMachineStopIsIdempotent(t *testing.T) {
	h := newMachineHarness(t, nil)
	h.m.Stop()
	h.m.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.m.Run(ctx); err != nil {
		t.Errorf("Run after Stop = %v, want nil", err)
	}
}
