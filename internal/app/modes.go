package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/updowngame/updown/internal/domain"
	"github.com/updowngame/updown/internal/feed"
	"github.com/updowngame/updown/internal/game"
	"github.com/updowngame/updown/internal/platform/binance"
	"github.com/updowngame/updown/internal/server"
	"github.com/updowngame/updown/internal/server/handler"
	"github.com/updowngame/updown/internal/server/ws"
	"github.com/updowngame/updown/internal/service"
)

// gameLockTTL bounds how long a crashed game process keeps its symbol
// locked. The lock is a startup guard against two machines settling the same
// symbol, not a lease that is refreshed while running.
const gameLockTTL = time.Hour

// GameMode runs the price feed and the round state machine without the HTTP
// API. Bets can only arrive through a separate observer-less full deployment,
// so this mode is for dedicated settlement workers.
func (a *App) GameMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting game mode")

	g, ctx := errgroup.WithContext(ctx)

	if _, err := a.startGame(ctx, g, deps); err != nil {
		return fmt.Errorf("game mode: %w", err)
	}
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// ObserverMode serves the HTTP and WebSocket API without running a machine.
// Round reads come from the Redis snapshot written by the game process;
// bet placement is rejected.
func (a *App) ObserverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting observer mode")

	g, ctx := errgroup.WithContext(ctx)

	if !a.cfg.Server.Enabled {
		return fmt.Errorf("observer mode: server.enabled is false, nothing to run")
	}
	a.startHTTPServer(ctx, g, deps, nil, nil)

	return g.Wait()
}

// FullMode runs everything in one process: the price feed, the game machine,
// the archiver, and the HTTP/WebSocket API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	machine, feedConn, err := a.startGameWithFeed(ctx, g, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.startArchiver(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, machine, feedConn)
	}

	return g.Wait()
}

// startGame acquires the per-symbol lock, builds the machine and the price
// feed, and registers their goroutines on the errgroup.
func (a *App) startGame(ctx context.Context, g *errgroup.Group, deps *Dependencies) (*game.Machine, error) {
	machine, _, err := a.startGameWithFeed(ctx, g, deps)
	return machine, err
}

func (a *App) startGameWithFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) (*game.Machine, *feed.Connector, error) {
	symbol := a.cfg.Game.Symbol

	// Only one machine may settle rounds for a symbol. A second instance
	// fails fast instead of silently double-settling.
	unlock, err := deps.LockManager.Acquire(ctx, "game:"+symbol, gameLockTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire game lock for %s: %w", symbol, err)
	}

	machine, err := a.buildMachine(deps)
	if err != nil {
		unlock()
		return nil, nil, err
	}

	feedConn := feed.NewConnector(feed.Config{
		StreamURL:         a.cfg.Binance.StreamURL,
		RESTURL:           a.cfg.Binance.RestURL,
		Symbol:            symbol,
		StaleThreshold:    a.cfg.Feed.StaleThreshold.Duration,
		HealthInterval:    a.cfg.Feed.HealthInterval.Duration,
		KeepAliveInterval: a.cfg.Feed.KeepAliveInterval.Duration,
		ReconnectWait:     a.cfg.Feed.ReconnectWait.Duration,
		ReplayBuffer:      a.cfg.Feed.ReplayBuffer,
	}, a.logger)

	// One subscription fans each tick out to the machine, the tick cache,
	// and the pub/sub channel the WebSocket hub mirrors.
	feedConn.Subscribe(func(tickCtx context.Context, tick domain.PriceTick) {
		machine.HandleTick(tickCtx, tick)
		if err := deps.TickCache.SetTick(tickCtx, tick); err != nil {
			a.logger.WarnContext(tickCtx, "tick cache update failed", slog.String("error", err.Error()))
		}
		payload, err := json.Marshal(tick)
		if err != nil {
			return
		}
		if err := deps.SignalBus.Publish(tickCtx, domain.ChannelPrice, payload); err != nil {
			a.logger.WarnContext(tickCtx, "price broadcast failed", slog.String("error", err.Error()))
		}
	})
	feedConn.Start()

	g.Go(func() error {
		defer unlock()
		defer feedConn.Stop()
		err := machine.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	return machine, feedConn, nil
}

// buildMachine constructs the game machine from config and wired stores.
func (a *App) buildMachine(deps *Dependencies) (*game.Machine, error) {
	feeRate, err := a.cfg.Game.FeeRateDecimal()
	if err != nil {
		return nil, fmt.Errorf("parse fee_rate: %w", err)
	}
	minBet, err := a.cfg.Game.MinBetDecimal()
	if err != nil {
		return nil, fmt.Errorf("parse min_bet: %w", err)
	}

	machine, err := game.NewMachine(game.Config{
		Symbol:           a.cfg.Game.Symbol,
		BettingDuration:  a.cfg.Game.BettingDuration.Duration,
		WaitingDuration:  a.cfg.Game.WaitingDuration.Duration,
		SettlingDuration: a.cfg.Game.SettleDuration.Duration,
		FeeRate:          feeRate,
		MinBet:           minBet,
		TickInterval:     a.cfg.Game.TickInterval.Duration,
		DebitTimeout:     a.cfg.Game.DebitTimeout.Duration,
		PriceStaleAfter:  a.cfg.Feed.StaleThreshold.Duration,
	}, game.Deps{
		Rounds:     deps.RoundStore,
		Bets:       deps.BetStore,
		Ledger:     deps.Ledger,
		Audit:      deps.AuditStore,
		Bus:        deps.SignalBus,
		RoundCache: deps.RoundCache,
		Escalator:  deps.Notifier,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("build machine: %w", err)
	}
	return machine, nil
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. machine and feedConn may be nil (observer mode); the
// handlers then serve from Redis snapshots and reject bet placement.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	machine *game.Machine,
	feedConn *feed.Connector,
) {
	symbol := a.cfg.Game.Symbol

	gameSvc := service.NewGameService(
		machine, deps.RoundStore, deps.BetStore, deps.Ledger, deps.RoundCache, a.logger,
	)
	priceSvc := service.NewPriceService(
		deps.TickCache, binance.NewRESTClient(a.cfg.Binance.RestURL), a.logger,
	)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Symbol:    symbol,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	var feedStatus func() domain.FeedStatus
	if feedConn != nil {
		feedStatus = feedConn.Status
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(feedStatus, a.logger),
		Rounds:  handler.NewRoundHandler(gameSvc, symbol, a.logger),
		Bets:    handler.NewBetHandler(gameSvc, a.logger),
		Wallets: handler.NewWalletHandler(gameSvc, a.logger),
		Prices:  handler.NewPriceHandler(priceSvc, symbol, a.logger),
		Audit:   handler.NewAuditHandler(deps.AuditStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
}

// startArchiver runs the settled-round archiver on its configured interval.
// It is a no-op when archiving is disabled.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	interval := a.cfg.Archive.Interval.Duration
	retention := a.cfg.Archive.RetentionDays

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				cutoff := time.Now().UTC().AddDate(0, 0, -retention)
				path, count, err := deps.Archiver.ArchiveSettledBefore(ctx, cutoff)
				if err != nil {
					a.logger.ErrorContext(ctx, "round archive failed",
						slog.Time("cutoff", cutoff),
						slog.String("error", err.Error()),
					)
					continue
				}
				if count == 0 {
					continue
				}
				a.logger.InfoContext(ctx, "archived settled rounds",
					slog.String("path", path),
					slog.Int("rounds", count),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	})
}
