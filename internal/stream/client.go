// Package stream maintains the long-lived server-to-client notification
// stream. It owns the connection lifecycle, attaches the bearer credential,
// watches the heartbeat, and publishes decoded events on the bus. Delivery
// is synchronous and in arrival order; the bus is the single registered
// sink for decoded events.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hemma-app/hemma/internal/bus"
	"github.com/hemma-app/hemma/internal/market"
	"github.com/hemma-app/hemma/internal/status"
	"go.uber.org/zap"
)

// ErrAuthRejected indicates the server refused the bearer credential.
// The daemon cannot recover without a fresh credential, so the client
// parks itself Disconnected instead of redialing.
var ErrAuthRejected = errors.New("stream credential rejected")

// Client is the notification stream client.
type Client struct {
	url         string
	token       string
	heartbeat   time.Duration
	redialDelay time.Duration
	httpc       *http.Client
	bus         *bus.Bus
	machine     *status.Machine
	logger      *zap.Logger

	mu           sync.Mutex
	lastActivity time.Time
	cancel       context.CancelFunc
}

// NewClient creates a stream client. heartbeat is the window without any
// server activity after which the connection is considered dead;
// redialDelay is the fixed pause before each reconnect attempt.
func NewClient(baseURL, token string, heartbeat, redialDelay time.Duration, b *bus.Bus, m *status.Machine, logger *zap.Logger) *Client {
	return &Client{
		url:         strings.TrimRight(baseURL, "/") + "/v1/notifications/stream",
		token:       token,
		heartbeat:   heartbeat,
		redialDelay: redialDelay,
		httpc:       &http.Client{},
		bus:         b,
		machine:     m,
		logger:      logger,
	}
}

// Start opens the stream and keeps it open until Stop or context cancel.
// Opens exactly one stream; a second Start while running is a no-op.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.run(ctx)
}

// Stop closes the stream and reports the Disconnected state.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Client) run(ctx context.Context) {
	for {
		if err := c.machine.Transition(status.Connecting); err != nil {
			c.logger.Warn("stream state transition failed", zap.Error(err))
		}

		err := c.consume(ctx)

		if ctx.Err() != nil || errors.Is(err, ErrAuthRejected) {
			if errors.Is(err, ErrAuthRejected) {
				c.logger.Error("stream auth rejected, re-authentication required")
			}
			_ = c.machine.Transition(status.Disconnected)
			return
		}

		c.logger.Warn("notification stream dropped", zap.Error(err))
		_ = c.machine.Transition(status.Reconnecting)

		select {
		case <-time.After(c.redialDelay):
		case <-ctx.Done():
			_ = c.machine.Transition(status.Disconnected)
			return
		}
	}
}

// consume dials the stream and reads it until it breaks. Returns the reason
// the stream ended; never panics out of the read loop.
func (c *Client) consume(ctx context.Context) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	// Credential goes in a header, never the URL, so it cannot leak into logs.
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrAuthRejected
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream HTTP %d", resp.StatusCode)
	}

	if err := c.machine.Transition(status.Connected); err != nil {
		c.logger.Warn("stream state transition failed", zap.Error(err))
	}
	c.logger.Info("notification stream connected")
	c.touch()

	go c.watchdog(connCtx, cancel)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		c.touch()
		c.handleLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return fmt.Errorf("stream closed by server")
}

// handleLine processes one line of the event stream. Heartbeat comments
// only refresh the liveness window; data lines are decoded and published.
// Malformed payloads are logged and dropped without breaking the stream.
func (c *Client) handleLine(line string) {
	if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
		return
	}
	data, ok := strings.CutPrefix(line, "data: ")
	if !ok {
		return
	}

	n, err := market.ParseNotification([]byte(data))
	if err != nil {
		c.logger.Warn("dropping malformed stream payload", zap.Error(err))
		return
	}

	c.bus.Publish(bus.Event{
		Kind:      "push.notification",
		Timestamp: time.Now(),
		Payload:   n,
	})
}

// watchdog cancels the connection when no server activity (data or
// heartbeat) arrives within the heartbeat window.
func (c *Client) watchdog(ctx context.Context, cancel context.CancelFunc) {
	interval := c.heartbeat / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			stale := time.Since(c.lastActivity) > c.heartbeat
			c.mu.Unlock()
			if stale {
				c.logger.Warn("stream heartbeat timeout", zap.Duration("window", c.heartbeat))
				cancel()
				return
			}
		}
	}
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}
