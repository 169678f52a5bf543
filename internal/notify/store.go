// Package notify holds the observable in-memory notification collection.
// The collection is write-through to the session cache database and every
// mutation that changes visible state publishes a notify.updated event on
// the bus so attached surfaces can re-render.
package notify

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hemma-app/hemma/internal/bus"
	"github.com/hemma-app/hemma/internal/store"
	"github.com/hemma-app/hemma/internal/template"
	"go.uber.org/zap"
)

// ErrStaleVersion indicates a replacement snapshot lost the race against a
// newer one and must be discarded, not applied.
var ErrStaleVersion = errors.New("stale snapshot version")

// Summary is the payload of notify.updated events.
type Summary struct {
	Total  int
	Unread int
}

// View is a display-ready notification: templates already substituted.
type View struct {
	ID        int64  `json:"id"`
	Category  string `json:"category"`
	Title     string `json:"title"`
	Body      string `json:"body,omitempty"`
	Redirect  string `json:"redirect,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt int64  `json:"created_at"`
}

// Store is the notification collection. The unread count is never stored;
// it is recomputed from the read flags on every query so it cannot drift.
type Store struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger

	mu      sync.Mutex
	list    []*store.Notification // index 0 = newest
	nextPos int64
	version int64
}

// New loads the cached collection from the database into memory.
func New(db *store.DB, b *bus.Bus, logger *zap.Logger) (*Store, error) {
	list, err := db.ListNotifications()
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	version, err := db.CacheVersion()
	if err != nil {
		return nil, fmt.Errorf("load cache version: %w", err)
	}

	var nextPos int64 = 1
	if len(list) > 0 {
		nextPos = list[0].Position + 1
	}

	logger.Info("notification cache loaded",
		zap.Int("count", len(list)),
		zap.Int64("version", version))

	return &Store{
		db:      db,
		bus:     b,
		logger:  logger,
		list:    list,
		nextPos: nextPos,
		version: version,
	}, nil
}

// Snapshot returns a copy of the collection, newest first.
func (s *Store) Snapshot() []*store.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.Notification, len(s.list))
	for i, n := range s.list {
		c := *n
		out[i] = &c
	}
	return out
}

// Views returns the collection rendered for display, newest first.
func (s *Store) Views() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]View, len(s.list))
	for i, n := range s.list {
		out[i] = View{
			ID:        n.ID,
			Category:  n.Category,
			Title:     template.Render(n.TitleTmpl, n.Context),
			Body:      template.Render(n.BodyTmpl, n.Context),
			Redirect:  n.Redirect,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		}
	}
	return out
}

// UnreadCount recomputes the number of unread notifications.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unread(s.list)
}

// Version returns the collection version. It increases on every full
// replacement and guards against stale snapshots being applied.
func (s *Store) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Add inserts a notification at the head of the collection. A record that
// arrives without a server id gets a negative local sequence id. Re-adding
// a known id updates the record in place instead of duplicating it.
func (s *Store) Add(n *store.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == 0 {
		id, err := s.db.NextLocalSeq()
		if err != nil {
			return fmt.Errorf("assign local id: %w", err)
		}
		n.ID = id
	}

	for i, cur := range s.list {
		if cur.ID == n.ID {
			n.Position = cur.Position
			if err := s.db.UpsertNotification(n); err != nil {
				return err
			}
			s.list[i] = n
			s.publish()
			return nil
		}
	}

	n.Position = s.nextPos
	if err := s.db.UpsertNotification(n); err != nil {
		return err
	}
	s.nextPos++
	s.list = append([]*store.Notification{n}, s.list...)
	s.publish()
	return nil
}

// MarkRead marks one notification read. Idempotent; marking an already-read
// or unknown id changes nothing and publishes nothing.
func (s *Store) MarkRead(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.list {
		if n.ID != id {
			continue
		}
		if n.Read {
			return nil
		}
		if err := s.db.SetNotificationRead(id, true); err != nil {
			return err
		}
		n.Read = true
		s.publish()
		return nil
	}
	return nil
}

// MarkAllRead marks every notification read. No-op when nothing is unread.
func (s *Store) MarkAllRead() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if unread(s.list) == 0 {
		return nil
	}
	if err := s.db.MarkAllNotificationsRead(); err != nil {
		return err
	}
	for _, n := range s.list {
		n.Read = true
	}
	s.publish()
	return nil
}

// Delete removes one notification. Unknown ids are a no-op.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.list {
		if n.ID != id {
			continue
		}
		if err := s.db.DeleteNotification(id); err != nil {
			return err
		}
		s.list = append(s.list[:i], s.list[i+1:]...)
		s.publish()
		return nil
	}
	return nil
}

// DeleteAll clears the collection.
func (s *Store) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.list) == 0 {
		return nil
	}
	if err := s.db.DeleteAllNotifications(); err != nil {
		return err
	}
	s.list = nil
	s.publish()
	return nil
}

// ReplaceAll swaps the whole collection for a reconciled snapshot. The
// version must exceed the current one; a stale snapshot (raced by a newer
// replacement) is rejected with ErrStaleVersion and leaves state untouched.
func (s *Store) ReplaceAll(list []*store.Notification, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version <= s.version {
		return fmt.Errorf("%w: have %d, got %d", ErrStaleVersion, s.version, version)
	}
	if err := s.db.ReplaceNotifications(list); err != nil {
		return err
	}
	if err := s.db.SetCacheVersion(version); err != nil {
		return err
	}

	s.list = list
	s.version = version
	s.nextPos = 1
	if len(list) > 0 {
		s.nextPos = list[0].Position + 1
	}
	s.publish()
	return nil
}

// publish emits notify.updated. Callers hold s.mu; the bus never blocks.
func (s *Store) publish() {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      "notify.updated",
		Timestamp: time.Now(),
		Payload:   Summary{Total: len(s.list), Unread: unread(s.list)},
	})
}

func unread(list []*store.Notification) int {
	count := 0
	for _, n := range list {
		if !n.Read {
			count++
		}
	}
	return count
}
