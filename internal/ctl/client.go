// Package ctl is the client side of the daemon's local control API. It
// speaks HTTP over the session's Unix domain socket.
package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hemma-app/hemma/internal/api"
	"github.com/hemma-app/hemma/internal/notify"
	"github.com/hemma-app/hemma/internal/rooms"
)

// Client talks to a running session daemon.
type Client struct {
	httpc *http.Client
}

// New creates a client for the daemon listening on socketPath.
func New(socketPath string) *Client {
	return &Client{
		httpc: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// Status fetches the daemon status report.
func (c *Client) Status(ctx context.Context) (*api.Status, error) {
	var out api.Status
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Notifications fetches the rendered notification list and unread count.
func (c *Client) Notifications(ctx context.Context) ([]notify.View, int, error) {
	var out struct {
		Notifications []notify.View `json:"notifications"`
		Unread        int           `json:"unread"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/notifications", nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Notifications, out.Unread, nil
}

// MarkRead marks one notification read.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/notifications/%d/read", id), nil, nil)
}

// MarkAllRead marks every notification read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/notifications/read-all", nil, nil)
}

// Delete removes one notification.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/notifications/%d", id), nil, nil)
}

// DeleteAll clears the notification list.
func (c *Client) DeleteAll(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v1/notifications", nil, nil)
}

// Reconcile asks the daemon to reconcile its cache against the server now.
func (c *Client) Reconcile(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/reconcile", nil, nil)
}

// Rooms fetches one room collection.
func (c *Client) Rooms(ctx context.Context, kind string) ([]rooms.View, error) {
	var out struct {
		Rooms []rooms.View `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/rooms/"+kind, nil, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

// JoinRoom subscribes the daemon to a room's chat topic.
func (c *Client) JoinRoom(ctx context.Context, roomID, kind string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/rooms/%s/%s/join", kind, roomID), nil, nil)
}

// LeaveRoom drops a room's chat topic subscription.
func (c *Client) LeaveRoom(ctx context.Context, roomID, kind string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/rooms/%s/%s/leave", kind, roomID), nil, nil)
}

// MarkRoomRead zeroes a room's unread counter.
func (c *Client) MarkRoomRead(ctx context.Context, roomID, kind string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/rooms/%s/%s/read", kind, roomID), nil, nil)
}

// Send publishes a text message to a room.
func (c *Client) Send(ctx context.Context, roomID, kind, body string) error {
	payload := map[string]string{"body": body}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/rooms/%s/%s/messages", kind, roomID), payload, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://daemon"+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("daemon: %s", e.Error)
		}
		return fmt.Errorf("daemon: HTTP %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
