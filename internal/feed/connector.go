// Package feed maintains the live index-price stream the game depends on.
// The connector owns one streaming connection at a time, watches it for
// silence, and replaces it transparently; consumers only ever see the latest
// tick, a bounded replay buffer, and a connection status.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/updowngame/updown/internal/domain"
	"github.com/updowngame/updown/internal/platform/binance"
)

const (
	defaultStaleThreshold    = 5 * time.Second
	defaultHealthInterval    = 2 * time.Second
	defaultKeepAliveInterval = 4 * time.Minute
	defaultReconnectWait     = 2 * time.Second
	defaultReplayBuffer      = 256

	dialTimeout = 15 * time.Second
)

// TickHandler receives each price tick in arrival order. Handlers are called
// sequentially on a single delivery goroutine and must not block for long.
type TickHandler func(ctx context.Context, tick domain.PriceTick)

// Config holds the connector parameters. Zero values fall back to defaults.
type Config struct {
	StreamURL string
	RESTURL   string
	Symbol    string

	// StaleThreshold is how long the stream may stay silent before the
	// health check force-closes the connection.
	StaleThreshold time.Duration
	// HealthInterval is how often the staleness check runs.
	HealthInterval time.Duration
	// KeepAliveInterval is how often an unsolicited ping frame is sent,
	// independent of the health check.
	KeepAliveInterval time.Duration
	// ReconnectWait is the fixed backoff between connection attempts.
	ReconnectWait time.Duration
	// ReplayBuffer is the number of recent ticks retained.
	ReplayBuffer int
}

// Connector implements the resilient price feed. Reconnection is never
// surfaced to callers; a dead feed only shows up as a stale Status and as
// the absence of fresh ticks.
type Connector struct {
	cfg    Config
	rest   *binance.RESTClient
	logger *slog.Logger

	mu         sync.RWMutex
	handlers   map[int]TickHandler
	nextID     int
	connected  bool
	lastTick   *domain.PriceTick
	lastMsgAt  time.Time
	reconnects int64

	ring     []domain.PriceTick
	ringNext int
	ringFull bool

	started  bool
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewConnector creates a connector for the configured symbol. Call Start to
// open the stream.
func NewConnector(cfg Config, logger *slog.Logger) *Connector {
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = defaultStaleThreshold
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = defaultKeepAliveInterval
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = defaultReconnectWait
	}
	if cfg.ReplayBuffer <= 0 {
		cfg.ReplayBuffer = defaultReplayBuffer
	}

	return &Connector{
		cfg:      cfg,
		rest:     binance.NewRESTClient(cfg.RESTURL),
		logger:   logger.With(slog.String("component", "price_feed")),
		handlers: make(map[int]TickHandler),
		ring:     make([]domain.PriceTick, cfg.ReplayBuffer),
		done:     make(chan struct{}),
	}
}

// Start opens the stream supervisor. It is idempotent: the second and later
// calls are no-ops.
func (c *Connector) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()
}

// Stop tears the feed down. No handler is invoked and no internal timer
// fires after Stop returns.
func (c *Connector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

// Subscribe registers a tick handler and returns its subscription id.
func (c *Connector) Subscribe(h TickHandler) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.handlers[c.nextID] = h
	return c.nextID
}

// Unsubscribe removes a previously registered handler.
func (c *Connector) Unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, id)
}

// Status reports the current connection health.
func (c *Connector) Status() domain.FeedStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.FeedStatus{
		Connected:   c.connected,
		LastTickAt:  c.lastMsgAt,
		Subscribers: len(c.handlers),
		Reconnects:  c.reconnects,
	}
}

// LatestTick returns the freshest tick seen, if any.
func (c *Connector) LatestTick() (domain.PriceTick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastTick == nil {
		return domain.PriceTick{}, false
	}
	return *c.lastTick, true
}

// RecentTicks returns up to n of the most recent ticks in chronological
// order from the bounded replay buffer.
func (c *Connector) RecentTicks(n int) []domain.PriceTick {
	c.mu.RLock()
	defer c.mu.RUnlock()

	size := c.ringNext
	if c.ringFull {
		size = len(c.ring)
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}

	out := make([]domain.PriceTick, 0, n)
	start := c.ringNext - n
	if start < 0 {
		start += len(c.ring)
	}
	for i := 0; i < n; i++ {
		out = append(out, c.ring[(start+i)%len(c.ring)])
	}
	return out
}

// HistoricalTicks reads backfill candles from the REST endpoint. Failures
// are returned to the caller, never retried here.
func (c *Connector) HistoricalTicks(ctx context.Context, symbol, interval string, limit int, endTime time.Time) ([]domain.Candle, error) {
	candles, err := c.rest.Klines(ctx, symbol, interval, limit, endTime)
	if err != nil {
		return nil, fmt.Errorf("feed: historical ticks: %w", err)
	}
	return candles, nil
}

func (c *Connector) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// run is the supervisor loop: dial, serve one session until it dies, wait a
// fixed backoff, repeat.
func (c *Connector) run() {
	defer c.wg.Done()

	first := true
	for {
		select {
		case <-c.done:
			return
		default:
		}

		if !first {
			c.mu.Lock()
			c.reconnects++
			c.mu.Unlock()
		}
		first = false

		err := c.session()
		c.setConnected(false)
		if err != nil {
			c.logger.Warn("stream session ended, reconnecting",
				slog.String("symbol", c.cfg.Symbol),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-c.done:
			return
		case <-time.After(c.cfg.ReconnectWait):
		}
	}
}

// session dials one connection and pumps it until it fails or the connector
// stops. A watchdog goroutine force-closes the connection on staleness or
// shutdown, which unblocks the read loop.
func (c *Connector) session() error {
	client := binance.NewStreamClient(c.cfg.StreamURL, c.cfg.Symbol)

	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	err := client.Connect(dialCtx)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	c.mu.Lock()
	c.connected = true
	c.lastMsgAt = time.Now()
	c.mu.Unlock()
	c.logger.Info("stream connected", slog.String("symbol", c.cfg.Symbol))

	sessionDone := make(chan struct{})
	defer close(sessionDone)

	go c.watchdog(client, sessionDone)

	for {
		message, err := client.Read()
		if err != nil {
			select {
			case <-c.done:
				return nil
			default:
				return err
			}
		}
		c.handleFrame(message)
	}
}

// watchdog runs the health-check and keep-alive timers for one session and
// stops both when the session or the connector ends.
func (c *Connector) watchdog(client *binance.StreamClient, sessionDone <-chan struct{}) {
	health := time.NewTicker(c.cfg.HealthInterval)
	keepAlive := time.NewTicker(c.cfg.KeepAliveInterval)
	defer health.Stop()
	defer keepAlive.Stop()

	for {
		select {
		case <-c.done:
			client.Close()
			return
		case <-sessionDone:
			return
		case <-health.C:
			c.mu.RLock()
			last := c.lastMsgAt
			c.mu.RUnlock()
			if silence := time.Since(last); silence > c.cfg.StaleThreshold {
				c.logger.Warn("stream stale, forcing reconnect",
					slog.String("symbol", c.cfg.Symbol),
					slog.Duration("silence", silence),
				)
				client.Close()
				return
			}
		case <-keepAlive.C:
			if err := client.Ping(); err != nil {
				c.logger.Warn("keep-alive ping failed", slog.String("error", err.Error()))
			}
		}
	}
}

// handleFrame parses one stream frame and fans the tick out to subscribers.
// Malformed frames are dropped and logged, not fatal.
func (c *Connector) handleFrame(raw []byte) {
	c.mu.Lock()
	c.lastMsgAt = time.Now()
	c.mu.Unlock()

	tick, err := binance.ParseTick(raw)
	if err != nil {
		c.logger.Debug("dropping unparseable frame", slog.String("error", err.Error()))
		return
	}
	c.dispatch(tick)
}

// dispatch records the tick and invokes the handlers sequentially, in
// subscription order, outside the connector lock. Handlers are never run
// concurrently with each other.
func (c *Connector) dispatch(tick domain.PriceTick) {
	c.mu.Lock()
	t := tick
	c.lastTick = &t
	c.ring[c.ringNext] = tick
	c.ringNext++
	if c.ringNext == len(c.ring) {
		c.ringNext = 0
		c.ringFull = true
	}

	ids := make([]int, 0, len(c.handlers))
	for id := range c.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]TickHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, c.handlers[id])
	}
	c.mu.Unlock()

	ctx := context.Background()
	for _, h := range handlers {
		h(ctx, tick)
	}
}
