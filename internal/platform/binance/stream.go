package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/updowngame/updown/internal/domain"
)

const (
	handshakeTimeout = 15 * time.Second
	writeWait        = 10 * time.Second
)

// StreamClient is a single WebSocket connection to a Binance market stream.
// It is a one-shot object: once the connection drops the caller discards it
// and dials a fresh one. Reconnect policy lives in the feed connector, not
// here.
type StreamClient struct {
	baseURL string
	symbol  string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewStreamClient creates a client for the given base WS URL (e.g.
// "wss://stream.binance.com:9443") and symbol.
func NewStreamClient(baseURL, symbol string) *StreamClient {
	return &StreamClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		symbol:  symbol,
	}
}

// Connect dials the aggTrade stream for the configured symbol.
func (c *StreamClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("binance: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	url := c.baseURL + "/ws/" + StreamName(c.symbol)

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("binance: connect %s: %w", url, err)
	}

	// The server pings periodically; answer so it keeps the session alive.
	conn.SetPingHandler(func(appData string) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	c.conn = conn
	return nil
}

// Read blocks until the next raw frame arrives or the connection fails.
func (c *StreamClient) Read() ([]byte, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("binance: %w", domain.ErrWSDisconnect)
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("binance: read: %w", err)
	}
	return message, nil
}

// Ping sends an unsolicited liveness frame. Binance closes connections that
// stay silent on the client side for too long.
func (c *StreamClient) Ping() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("binance: %w", domain.ErrWSDisconnect)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		return fmt.Errorf("binance: ping: %w", err)
	}
	return nil
}

// Close tears down the connection. Safe to call multiple times; Read calls
// unblock with an error.
func (c *StreamClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return c.conn.Close()
	}
	return nil
}
