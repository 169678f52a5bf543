// Package market is the outbound client for the marketplace HTTP API: the
// notification snapshot fetch and the mutation calls. The server is the
// single source of truth for notification content and read state; every
// local mutation goes through here before the cache is touched.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hemma-app/hemma/internal/store"
	"go.uber.org/zap"
)

// AuthError indicates the bearer credential was rejected. The daemon cannot
// recover from this on its own; re-authentication happens outside it.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("credential rejected (HTTP %d)", e.StatusCode)
}

// Client talks to the marketplace REST API with bearer auth.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	logger  *zap.Logger
}

// NewClient creates a marketplace API client.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// FetchNotifications returns the full current notification list for the
// session, in server order (newest first).
func (c *Client) FetchNotifications(ctx context.Context) ([]*store.Notification, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/notifications", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Notifications []json.RawMessage `json:"notifications"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode notification list: %w", err)
	}

	list := make([]*store.Notification, 0, len(resp.Notifications))
	for _, raw := range resp.Notifications {
		n, err := ParseNotification(raw)
		if err != nil {
			// One malformed record must not fail the whole snapshot.
			c.logger.Warn("skipping malformed notification in snapshot", zap.Error(err))
			continue
		}
		list = append(list, n)
	}
	return list, nil
}

// MarkRead marks one notification as read on the server.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/notifications/%d/read", id), nil)
	return err
}

// MarkAllRead marks every notification as read on the server.
func (c *Client) MarkAllRead(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/v1/notifications/read-all", nil)
	return err
}

// Delete removes one notification on the server.
func (c *Client) Delete(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/notifications/%d", id), nil)
	return err
}

// DeleteAll removes every notification on the server.
func (c *Client) DeleteAll(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/notifications", nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, reqBody io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	// Credential goes in a header, never a query parameter, so it cannot
	// leak into access logs or shared URLs.
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{StatusCode: resp.StatusCode}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	return body, nil
}
