// Package api implements the operations the local control surface exposes.
// Mutations are server-first: the marketplace API is the source of truth,
// so the cache only changes after the server accepted the call. A server
// failure therefore leaves local state exactly as it was.
package api

import (
	"context"
	"fmt"

	"github.com/hemma-app/hemma/internal/market"
	"github.com/hemma-app/hemma/internal/notify"
	"go.uber.org/zap"
)

// NotificationService exposes the notification collection and its mutations.
type NotificationService struct {
	client *market.Client
	store  *notify.Store
	logger *zap.Logger
}

// NewNotificationService creates the notification service.
func NewNotificationService(client *market.Client, store *notify.Store, logger *zap.Logger) *NotificationService {
	return &NotificationService{client: client, store: store, logger: logger}
}

// List returns the rendered collection, newest first.
func (s *NotificationService) List() []notify.View {
	return s.store.Views()
}

// Unread returns the current unread count.
func (s *NotificationService) Unread() int {
	return s.store.UnreadCount()
}

// MarkRead marks one notification read, server first.
func (s *NotificationService) MarkRead(ctx context.Context, id int64) error {
	// Locally-assigned ids are unknown to the server; flip them cache-only.
	if id > 0 {
		if err := s.client.MarkRead(ctx, id); err != nil {
			return fmt.Errorf("mark read on server: %w", err)
		}
	}
	if err := s.store.MarkRead(id); err != nil {
		s.logger.Error("cache behind server after mark read", zap.Int64("id", id), zap.Error(err))
		return err
	}
	return nil
}

// MarkAllRead marks the whole collection read, server first.
func (s *NotificationService) MarkAllRead(ctx context.Context) error {
	if err := s.client.MarkAllRead(ctx); err != nil {
		return fmt.Errorf("mark all read on server: %w", err)
	}
	if err := s.store.MarkAllRead(); err != nil {
		s.logger.Error("cache behind server after mark all read", zap.Error(err))
		return err
	}
	return nil
}

// Delete removes one notification, server first.
func (s *NotificationService) Delete(ctx context.Context, id int64) error {
	if id > 0 {
		if err := s.client.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete on server: %w", err)
		}
	}
	if err := s.store.Delete(id); err != nil {
		s.logger.Error("cache behind server after delete", zap.Int64("id", id), zap.Error(err))
		return err
	}
	return nil
}

// DeleteAll clears the collection, server first.
func (s *NotificationService) DeleteAll(ctx context.Context) error {
	if err := s.client.DeleteAll(ctx); err != nil {
		return fmt.Errorf("delete all on server: %w", err)
	}
	if err := s.store.DeleteAll(); err != nil {
		s.logger.Error("cache behind server after delete all", zap.Error(err))
		return err
	}
	return nil
}
