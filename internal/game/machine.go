package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/updowngame/updown/internal/domain"
)

const (
	defaultTickInterval    = 500 * time.Millisecond
	defaultDebitTimeout    = 5 * time.Second
	defaultPriceStaleAfter = 5 * time.Second

	// finalize persistence/credit retries after settlement.
	finalizeAttempts = 3
	finalizeBackoff  = 2 * time.Second
)

// Escalator delivers operator alerts for conditions that must not pass
// silently: price-degraded rounds and settlement persistence failures.
type Escalator interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the game parameters. Durations must be positive; FeeRate is a
// fraction of winning payouts.
type Config struct {
	Symbol           string
	BettingDuration  time.Duration
	WaitingDuration  time.Duration
	SettlingDuration time.Duration
	FeeRate          decimal.Decimal
	MinBet           decimal.Decimal
	TickInterval     time.Duration
	DebitTimeout     time.Duration

	// PriceStaleAfter is how old the last tick may be before a phase
	// boundary treats the price as missing. Normally the feed's own
	// staleness threshold.
	PriceStaleAfter time.Duration
}

// Deps bundles the collaborators the machine drives. Rounds, Bets, and
// Ledger are required; the rest may be nil and are then skipped.
type Deps struct {
	Rounds     domain.RoundStore
	Bets       domain.BetStore
	Ledger     domain.Ledger
	Audit      domain.AuditStore
	Bus        domain.SignalBus
	RoundCache domain.RoundCache
	Escalator  Escalator
}

// Machine owns the single active round and its pool. Every mutation -- phase
// advancement from the periodic tick, bet placement from concurrent callers,
// and price capture -- runs under one mutex, so the active round is a single
// mutually-exclusive resource.
type Machine struct {
	cfg  Config
	deps Deps

	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	round      *domain.Round
	pool       *Pool
	lastTick   *domain.PriceTick
	lastTickAt time.Time

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewMachine creates a machine. It does not start a round until Run.
func NewMachine(cfg Config, deps Deps, logger *slog.Logger) (*Machine, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("game: symbol is required")
	}
	if cfg.BettingDuration <= 0 || cfg.WaitingDuration <= 0 || cfg.SettlingDuration <= 0 {
		return nil, fmt.Errorf("game: phase durations must be positive")
	}
	if cfg.FeeRate.IsNegative() || cfg.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("game: fee rate must be in [0, 1)")
	}
	if deps.Rounds == nil || deps.Bets == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("game: round store, bet store, and ledger are required")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.DebitTimeout <= 0 {
		cfg.DebitTimeout = defaultDebitTimeout
	}
	if cfg.PriceStaleAfter <= 0 {
		cfg.PriceStaleAfter = defaultPriceStaleAfter
	}

	return &Machine{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "game_machine")),
		now:    time.Now,
		done:   make(chan struct{}),
	}, nil
}

// Run starts the first round and drives phase advancement on a fixed-period
// tick until the context is cancelled or Stop is called. In-flight
// settlement persistence is drained before Run returns.
func (m *Machine) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.round == nil {
		m.startRound(m.now())
	}
	m.mu.Unlock()

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return ctx.Err()
		case <-m.done:
			m.wg.Wait()
			return nil
		case <-ticker.C:
			m.step(ctx)
			m.broadcastRound(ctx)
		}
	}
}

// Stop halts phase advancement. It does not corrupt the in-flight round; an
// interrupted round is reconciled from storage. Safe to call more than once
// and from outside the tick loop.
func (m *Machine) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// HandleTick caches the freshest price tick for the configured symbol. It is
// registered as a feed subscriber and never blocks on I/O.
func (m *Machine) HandleTick(ctx context.Context, tick domain.PriceTick) {
	if tick.Symbol != m.cfg.Symbol {
		return
	}
	m.mu.Lock()
	t := tick
	m.lastTick = &t
	m.lastTickAt = m.now()
	m.mu.Unlock()
}

// liveTick returns the last tick only while it is fresh enough to price a
// phase boundary. A tick older than PriceStaleAfter is a dead feed, not a
// price. Caller holds m.mu.
func (m *Machine) liveTick(now time.Time) *domain.PriceTick {
	if m.lastTick == nil || now.Sub(m.lastTickAt) > m.cfg.PriceStaleAfter {
		return nil
	}
	return m.lastTick
}

// PlaceBet validates the bet against the active round, appends it to the
// pool, and debits the stake from the ledger before confirming. The debit
// happens under the round lock so a phase-boundary snapshot can never
// contain an unfunded bet; the wait is bounded by the configured debit
// timeout. A debit failure rolls the bet back and leaves no partial state.
func (m *Machine) PlaceBet(ctx context.Context, userID string, dir domain.Direction, amount decimal.Decimal) (domain.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round == nil {
		return domain.Bet{}, domain.ErrInvalidPhase
	}
	now := m.now()
	if m.round.Phase != domain.PhaseBetting || CurrentPhase(*m.round, now) != domain.PhaseBetting {
		return domain.Bet{}, domain.ErrInvalidPhase
	}

	bet, err := m.pool.PlaceBet(userID, dir, amount, now)
	if err != nil {
		return domain.Bet{}, err
	}

	debitCtx, cancel := context.WithTimeout(ctx, m.cfg.DebitTimeout)
	err = m.deps.Ledger.Debit(debitCtx, userID, amount)
	cancel()
	if err != nil {
		m.pool.Remove(userID)
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return domain.Bet{}, err
		}
		return domain.Bet{}, fmt.Errorf("%w: %v", domain.ErrDebitFailed, err)
	}

	// The bet is confirmed once the debit lands; a persistence failure is an
	// operational incident, not a rejection.
	if saveErr := m.deps.Bets.Save(ctx, bet); saveErr != nil {
		m.logger.ErrorContext(ctx, "failed to persist bet",
			slog.String("bet_id", bet.ID.String()),
			slog.String("user_id", userID),
			slog.String("error", saveErr.Error()),
		)
		m.auditLog(ctx, "bet_persist_failed", map[string]any{
			"bet_id":   bet.ID.String(),
			"round_id": bet.RoundID.String(),
			"user_id":  userID,
			"amount":   amount.String(),
		})
	}

	m.logger.InfoContext(ctx, "bet placed",
		slog.String("round_id", bet.RoundID.String()),
		slog.String("user_id", userID),
		slog.String("direction", string(dir)),
		slog.String("amount", amount.String()),
	)
	return bet, nil
}

// FindUserBet returns the caller's bet in the active round, if any.
func (m *Machine) FindUserBet(userID string) (domain.Bet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool == nil {
		return domain.Bet{}, false
	}
	return m.pool.FindUserBet(userID)
}

// CurrentRound returns a read-only snapshot of the active round.
func (m *Machine) CurrentRound() domain.RoundSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(m.now())
}

// step advances the round over any phase boundaries crossed since the last
// tick. Catching up over more than one boundary is possible after a stall
// (e.g. a suspended VM); each boundary's side effects still run in order.
func (m *Machine) step(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		now := m.now()
		advance, next := ShouldAdvance(*m.round, now)
		if !advance {
			return
		}
		switch next {
		case domain.PhaseWaiting:
			m.enterWaiting(ctx, now)
		case domain.PhaseSettling:
			m.enterSettling(ctx, now)
		case domain.PhaseBetting:
			m.startRound(now)
		}
	}
}

// startRound creates a fresh round in the Betting phase. Caller holds m.mu.
func (m *Machine) startRound(now time.Time) {
	r := &domain.Round{
		ID:          uuid.New(),
		Symbol:      m.cfg.Symbol,
		Phase:       domain.PhaseBetting,
		StartTime:   now,
		BettingEnd:  now.Add(m.cfg.BettingDuration),
		WaitingEnd:  now.Add(m.cfg.BettingDuration + m.cfg.WaitingDuration),
		SettleEnd:   now.Add(m.cfg.BettingDuration + m.cfg.WaitingDuration + m.cfg.SettlingDuration),
		TotalPayout: decimal.Zero,
		PlatformFee: decimal.Zero,
		NetProfit:   decimal.Zero,
		CreatedAt:   now,
	}
	m.round = r
	m.pool = NewPool(r.ID, m.cfg.MinBet)

	m.logger.Info("round started",
		slog.String("round_id", r.ID.String()),
		slog.String("symbol", r.Symbol),
		slog.Time("betting_end", r.BettingEnd),
	)
}

// enterWaiting closes the pool and locks the reference price. Caller holds m.mu.
func (m *Machine) enterWaiting(ctx context.Context, now time.Time) {
	m.pool.Close()
	m.round.Phase = domain.PhaseWaiting

	if tick := m.liveTick(now); tick == nil {
		// Time cannot stall on a dead feed; advance anyway but mark the
		// round so settlement voids it instead of using a garbage price.
		m.round.PriceDegraded = true
		m.logger.Error("no live price at betting close, round degraded",
			slog.String("round_id", m.round.ID.String()),
		)
		m.auditLog(ctx, "round_price_degraded", map[string]any{
			"round_id": m.round.ID.String(),
			"boundary": "betting_end",
		})
	} else {
		price := tick.Price
		ts := tick.EventTime
		m.round.LockedPrice = &price
		m.round.LockedAt = &ts
	}

	m.logger.Info("round locked",
		slog.String("round_id", m.round.ID.String()),
		slog.String("locked_price", priceString(m.round.LockedPrice)),
		slog.String("total_pool", m.pool.Total().String()),
	)
}

// enterSettling captures the closing price and settles the round. Caller
// holds m.mu.
func (m *Machine) enterSettling(ctx context.Context, now time.Time) {
	m.round.Phase = domain.PhaseSettling

	if tick := m.liveTick(now); tick == nil {
		m.round.PriceDegraded = true
		m.auditLog(ctx, "round_price_degraded", map[string]any{
			"round_id": m.round.ID.String(),
			"boundary": "waiting_end",
		})
	} else {
		price := tick.Price
		ts := tick.EventTime
		m.round.ClosedPrice = &price
		m.round.ClosedAt = &ts
	}

	m.settle(ctx, now)
}

// settle finalizes the round: computes the outcome and per-bet results (or
// voids a degraded round), then hands persistence and ledger credits to a
// background finalizer so the next round is never blocked on a slow
// collaborator. Caller holds m.mu.
func (m *Machine) settle(ctx context.Context, now time.Time) {
	r := m.round
	r.Pool = m.pool.Snapshot()
	settledAt := now
	r.SettledAt = &settledAt

	var results []domain.BettingResult
	var refunds []domain.Bet

	if r.PriceDegraded || r.LockedPrice == nil || r.ClosedPrice == nil {
		// Settling on a missing price would be unfair with real money at
		// stake: void the round and refund every stake.
		r.Outcome = domain.OutcomeVoid
		r.TotalPayout = decimal.Zero
		r.PlatformFee = decimal.Zero
		r.NetProfit = decimal.Zero
		results = ComputeResults(r.Pool, r.Outcome, m.cfg.FeeRate)
		refunds = r.Pool.Bets()

		m.logger.Error("round voided: missing price at settlement",
			slog.String("round_id", r.ID.String()),
			slog.Int("refunds", len(refunds)),
		)
		m.escalate(ctx, "round_voided", "Round voided",
			fmt.Sprintf("round %s voided (price-degraded), refunding %d stake(s) totalling %s",
				r.ID, len(refunds), r.Pool.TotalPool))
	} else {
		r.Outcome = DetermineOutcome(*r.LockedPrice, *r.ClosedPrice)
		results = ComputeResults(r.Pool, r.Outcome, m.cfg.FeeRate)
		r.TotalPayout, r.PlatformFee, r.NetProfit = ComputeFeeDistribution(results, r.Pool.TotalPool, m.cfg.FeeRate)

		m.logger.Info("round settled",
			slog.String("round_id", r.ID.String()),
			slog.String("outcome", string(r.Outcome)),
			slog.String("locked_price", priceString(r.LockedPrice)),
			slog.String("closed_price", priceString(r.ClosedPrice)),
			slog.String("total_pool", r.Pool.TotalPool.String()),
			slog.String("total_payout", r.TotalPayout.String()),
			slog.String("net_profit", r.NetProfit.String()),
		)
	}

	m.broadcastSettlement(ctx, *r, results)

	final := *r
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.finalize(final, results, refunds)
	}()
}

// finalize persists the settled round, writes per-bet results, and credits
// payouts (or refunds). Failures are retried a few times and then escalated:
// failing to pay winners is a critical incident, but it must never stall the
// next round.
func (m *Machine) finalize(r domain.Round, results []domain.BettingResult, refunds []domain.Bet) {
	ctx := context.Background()

	err := m.withRetry(func() error {
		if err := m.deps.Rounds.Save(ctx, r); err != nil {
			return fmt.Errorf("save round: %w", err)
		}
		if err := m.deps.Bets.UpdateResults(ctx, r.ID, results); err != nil {
			return fmt.Errorf("update bet results: %w", err)
		}
		return nil
	})
	if err != nil {
		m.logger.Error("settlement persistence failed",
			slog.String("round_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
		m.auditLog(ctx, "settlement_persist_failed", map[string]any{
			"round_id": r.ID.String(),
			"error":    err.Error(),
		})
		m.escalate(ctx, "settlement_failed", "Settlement persistence failed",
			fmt.Sprintf("round %s: %v", r.ID, err))
	}

	for _, res := range results {
		if !res.IsWinner || res.Payout.IsZero() {
			continue
		}
		m.creditOrEscalate(ctx, r.ID, res.UserID, res.Payout, "payout")
	}
	for _, bet := range refunds {
		m.creditOrEscalate(ctx, r.ID, bet.UserID, bet.Amount, "refund")
	}
}

func (m *Machine) creditOrEscalate(ctx context.Context, roundID uuid.UUID, userID string, amount decimal.Decimal, kind string) {
	err := m.withRetry(func() error {
		return m.deps.Ledger.Credit(ctx, userID, amount)
	})
	if err == nil {
		return
	}
	m.logger.Error("ledger credit failed",
		slog.String("round_id", roundID.String()),
		slog.String("user_id", userID),
		slog.String("amount", amount.String()),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
	m.auditLog(ctx, "credit_failed", map[string]any{
		"round_id": roundID.String(),
		"user_id":  userID,
		"amount":   amount.String(),
		"kind":     kind,
		"error":    err.Error(),
	})
	m.escalate(ctx, "credit_failed", "Ledger credit failed",
		fmt.Sprintf("round %s: %s of %s to user %s failed: %v", roundID, kind, amount, userID, err))
}

// withRetry runs fn up to finalizeAttempts times with a fixed backoff,
// aborting early when the machine is stopped.
func (m *Machine) withRetry(fn func() error) error {
	var err error
	for attempt := 1; attempt <= finalizeAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == finalizeAttempts {
			break
		}
		select {
		case <-m.done:
			return err
		case <-time.After(finalizeBackoff):
		}
	}
	return err
}

// snapshotLocked builds the broadcast view of the active round. Caller holds m.mu.
func (m *Machine) snapshotLocked(now time.Time) domain.RoundSnapshot {
	r := m.round
	if r == nil {
		return domain.RoundSnapshot{Symbol: m.cfg.Symbol, Timestamp: now}
	}

	snap := domain.RoundSnapshot{
		RoundID:       r.ID,
		Symbol:        r.Symbol,
		Phase:         r.Phase,
		Remaining:     RemainingTime(*r, now),
		UpTotal:       m.pool.upTotal,
		DownTotal:     m.pool.downTotal,
		TotalPool:     m.pool.Total(),
		UpOdds:        m.pool.Odds(domain.DirectionUp),
		DownOdds:      m.pool.Odds(domain.DirectionDown),
		BetCount:      m.pool.BetCount(),
		LockedPrice:   r.LockedPrice,
		PriceDegraded: r.PriceDegraded,
		Timestamp:     now,
	}
	if tick := m.liveTick(now); tick != nil {
		price := tick.Price
		snap.LatestPrice = &price
	}
	return snap
}

// broadcastRound publishes the current round snapshot and mirrors it into
// the round cache. Both are fire-and-forget.
func (m *Machine) broadcastRound(ctx context.Context) {
	m.mu.Lock()
	snap := m.snapshotLocked(m.now())
	m.mu.Unlock()

	if m.deps.RoundCache != nil {
		if err := m.deps.RoundCache.SetSnapshot(ctx, snap); err != nil {
			m.logger.WarnContext(ctx, "round cache update failed", slog.String("error", err.Error()))
		}
	}
	if m.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := m.deps.Bus.Publish(ctx, domain.ChannelRound, payload); err != nil {
		m.logger.WarnContext(ctx, "round broadcast failed", slog.String("error", err.Error()))
	}
}

// broadcastSettlement publishes the settlement result. Caller holds m.mu.
func (m *Machine) broadcastSettlement(ctx context.Context, r domain.Round, results []domain.BettingResult) {
	if m.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"round_id":     r.ID,
		"symbol":       r.Symbol,
		"outcome":      r.Outcome,
		"locked_price": r.LockedPrice,
		"closed_price": r.ClosedPrice,
		"total_pool":   r.Pool.TotalPool,
		"total_payout": r.TotalPayout,
		"platform_fee": r.PlatformFee,
		"net_profit":   r.NetProfit,
		"results":      results,
	})
	if err != nil {
		return
	}
	if err := m.deps.Bus.Publish(ctx, domain.ChannelSettlement, payload); err != nil {
		m.logger.WarnContext(ctx, "settlement broadcast failed", slog.String("error", err.Error()))
	}
}

func (m *Machine) auditLog(ctx context.Context, event string, detail map[string]any) {
	if m.deps.Audit == nil {
		return
	}
	if err := m.deps.Audit.Log(ctx, event, detail); err != nil {
		m.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Machine) escalate(ctx context.Context, event, title, message string) {
	if m.deps.Escalator == nil {
		return
	}
	if err := m.deps.Escalator.Notify(ctx, event, title, message); err != nil {
		m.logger.WarnContext(ctx, "escalation failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func priceString(p *decimal.Decimal) string {
	if p == nil {
		return "none"
	}
	return p.String()
}
