// Package chat maintains the bidirectional topic-addressed chat channel.
// One connection per session; topics map one-to-one to joined rooms.
package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hemma-app/hemma/internal/status"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Subscription is the handle for one live topic subscription.
type Subscription struct {
	Topic string
}

type subscription struct {
	handle  *Subscription
	handler Handler
}

// Client is the chat transport client. The connection object is owned
// exclusively by this client and never mutated from outside.
type Client struct {
	url         string
	token       string
	redialDelay time.Duration
	machine     *status.Machine
	logger      *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string]*subscription
	cancel  context.CancelFunc
	closing bool // intentional close, suppresses the redial loop
}

// NewClient creates a chat client for the given marketplace base URL.
func NewClient(baseURL, token string, redialDelay time.Duration, m *status.Machine, logger *zap.Logger) *Client {
	wsURL := strings.Replace(baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	return &Client{
		url:         strings.TrimRight(wsURL, "/") + "/v1/chat/ws",
		token:       token,
		redialDelay: redialDelay,
		machine:     m,
		logger:      logger,
		subs:        make(map[string]*subscription),
	}
}

// Connect opens the chat connection. A second call while already connected
// (or connecting) returns nil immediately without opening a duplicate socket.
func (c *Client) Connect(ctx context.Context) error {
	if s := c.machine.Current(); s == status.Connected || s == status.Connecting {
		return nil
	}
	if err := c.machine.Transition(status.Connecting); err != nil {
		return err
	}

	conn, err := c.dial(ctx)
	if err != nil {
		_ = c.machine.Transition(status.Disconnected)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.closing = false
	c.mu.Unlock()

	_ = c.machine.Transition(status.Connected)
	c.logger.Info("chat channel connected")

	c.resubscribe(runCtx)
	go c.readLoop(runCtx)
	return nil
}

// Subscribe registers a handler for a topic. Subscribing to an
// already-subscribed topic returns the existing handle, so repeated
// mount/unmount cycles never cause duplicate delivery.
func (c *Client) Subscribe(ctx context.Context, topic string, h Handler) *Subscription {
	if h == nil {
		return nil
	}

	c.mu.Lock()
	if existing, ok := c.subs[topic]; ok {
		c.mu.Unlock()
		return existing.handle
	}
	sub := &subscription{handle: &Subscription{Topic: topic}, handler: h}
	c.subs[topic] = sub
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.send(ctx, conn, &frame{Type: frameSubscribe, Topic: topic})
	}
	return sub.handle
}

// Unsubscribe removes a topic subscription. Safe to call for unknown topics.
func (c *Client) Unsubscribe(ctx context.Context, topic string) {
	c.mu.Lock()
	_, ok := c.subs[topic]
	delete(c.subs, topic)
	conn := c.conn
	c.mu.Unlock()

	if ok && conn != nil {
		c.send(ctx, conn, &frame{Type: frameUnsubscribe, Topic: topic})
	}
}

// Publish sends a message to a destination, fire-and-forget. When the
// channel is not connected the call is a no-op that logs a warning; there
// is no outbound queue and callers must not assume delivery.
func (c *Client) Publish(ctx context.Context, destination string, msg Message) {
	if c.machine.Current() != status.Connected {
		c.logger.Warn("publish while not connected, dropping message",
			zap.String("destination", destination))
		return
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.logger.Warn("publish with no connection, dropping message",
			zap.String("destination", destination))
		return
	}
	c.send(ctx, conn, &frame{Type: framePublish, Destination: destination, Message: &msg})
}

// Disconnect unsubscribes every active topic before tearing down the
// socket, so no handler fires after teardown.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closing = true
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.subs = make(map[string]*subscription)
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if conn != nil {
		ctx, done := context.WithTimeout(context.Background(), time.Second)
		for _, topic := range topics {
			c.send(ctx, conn, &frame{Type: frameUnsubscribe, Topic: topic})
		}
		done()
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	if cancel != nil {
		cancel()
	}
	if c.machine.Current() != status.Disconnected {
		_ = c.machine.Transition(status.Disconnected)
	}
	c.logger.Info("chat channel disconnected")
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	// Credential rides in a header, not the URL.
	header.Set("Authorization", "Bearer "+c.token)
	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: header})
	return conn, err
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			intentional := c.closing
			c.mu.Unlock()
			if intentional || ctx.Err() != nil {
				return
			}
			c.logger.Warn("chat channel dropped", zap.Error(err))
			c.redial(ctx)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping malformed chat frame", zap.Error(err))
			continue
		}
		if f.Type != frameMessage || f.Message == nil {
			continue
		}

		c.mu.Lock()
		sub, ok := c.subs[f.Topic]
		c.mu.Unlock()
		if !ok {
			continue
		}

		evt := Event{Topic: f.Topic, Message: *f.Message}
		if f.Room != nil {
			evt.Room = *f.Room
		}
		sub.handler(evt)
	}
}

// redial runs the fixed-delay reconnect loop and resumes reading once the
// socket is back. Constant backoff is deliberate for a UI-attached channel.
func (c *Client) redial(ctx context.Context) {
	_ = c.machine.Transition(status.Reconnecting)

	for {
		select {
		case <-time.After(c.redialDelay):
		case <-ctx.Done():
			_ = c.machine.Transition(status.Disconnected)
			return
		}

		_ = c.machine.Transition(status.Connecting)
		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("chat redial failed", zap.Error(err))
			_ = c.machine.Transition(status.Reconnecting)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		_ = c.machine.Transition(status.Connected)
		c.logger.Info("chat channel reconnected")

		c.resubscribe(ctx)
		go c.readLoop(ctx)
		return
	}
}

// resubscribe replays subscribe frames for every surviving topic.
func (c *Client) resubscribe(ctx context.Context) {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	for _, topic := range topics {
		c.send(ctx, conn, &frame{Type: frameSubscribe, Topic: topic})
	}
}

func (c *Client) send(ctx context.Context, conn *websocket.Conn, f *frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.logger.Warn("encode chat frame", zap.Error(err))
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.logger.Warn("write chat frame", zap.Error(err), zap.String("type", f.Type))
	}
}
