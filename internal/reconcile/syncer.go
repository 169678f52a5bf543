package reconcile

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hemma-app/hemma/internal/bus"
	"github.com/hemma-app/hemma/internal/market"
	"github.com/hemma-app/hemma/internal/notify"
	"go.uber.org/zap"
)

// Completed is the payload of reconcile.completed events.
type Completed struct {
	NewOnServer     int
	UpdatedOnServer int
	DeletedOnServer int
	Conflicts       int
}

// Syncer fetches the server snapshot and converges the cached collection on
// it. Runs overlap when the connection flaps; only the most recently issued
// run is allowed to apply, older ones discard their result.
type Syncer struct {
	client *market.Client
	notify *notify.Store
	bus    *bus.Bus
	logger *zap.Logger

	latest atomic.Int64
}

// NewSyncer creates a syncer over the given API client and collection.
func NewSyncer(client *market.Client, n *notify.Store, b *bus.Bus, logger *zap.Logger) *Syncer {
	return &Syncer{client: client, notify: n, bus: b, logger: logger}
}

// Run performs one reconciliation pass. Safe to call concurrently; a run
// superseded by a newer one while fetching returns nil without applying.
func (s *Syncer) Run(ctx context.Context) error {
	token := s.latest.Add(1)
	baseVersion := s.notify.Version()

	server, err := s.client.FetchNotifications(ctx)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}

	if s.latest.Load() != token {
		s.logger.Debug("discarding superseded reconciliation", zap.Int64("token", token))
		return nil
	}

	local := s.notify.Snapshot()
	result := Reconcile(local, server)

	for _, c := range result.Conflicts {
		s.logger.Warn("cache diverged from server, server wins",
			zap.Int64("id", c.ID),
			zap.String("field", c.Field),
			zap.String("local", c.Local),
			zap.String("server", c.Server))
	}
	// Records only the cache knows about mean a lost ack or an ingest bug;
	// the server copy wins and they are dropped, loudly.
	for _, n := range result.NewLocally {
		s.logger.Error("unacknowledged local notification dropped during reconciliation",
			zap.Int64("id", n.ID), zap.String("category", n.Category))
	}

	if result.Empty() {
		s.logger.Debug("cache already converged", zap.Int("count", len(server)))
		s.publish(result)
		return nil
	}

	if err := s.notify.ReplaceAll(server, baseVersion+1); err != nil {
		// A stale version means a newer run already applied; that is fine.
		s.logger.Debug("reconciliation result not applied", zap.Error(err))
		return nil
	}

	s.logger.Info("reconciliation applied",
		zap.Int("new_on_server", len(result.NewOnServer)),
		zap.Int("updated_on_server", len(result.UpdatedOnServer)),
		zap.Int("deleted_on_server", len(result.DeletedOnServer)),
		zap.Int("conflicts", len(result.Conflicts)))
	s.publish(result)
	return nil
}

// publish emits reconcile.completed with bucket sizes only; payloads stay
// out of the bus so a slow subscriber cannot pin the whole snapshot.
func (s *Syncer) publish(r *Result) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      "reconcile.completed",
		Timestamp: time.Now(),
		Payload: Completed{
			NewOnServer:     len(r.NewOnServer),
			UpdatedOnServer: len(r.UpdatedOnServer),
			DeletedOnServer: len(r.DeletedOnServer),
			Conflicts:       len(r.Conflicts),
		},
	})
}
