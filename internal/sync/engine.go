// Package sync routes decoded channel events into local state. It is the
// only writer that fans bus traffic out to the notification collection and
// the room projector, and it triggers reconciliation whenever the push
// stream comes back after an outage.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/hemma-app/hemma/internal/bus"
	"github.com/hemma-app/hemma/internal/chat"
	"github.com/hemma-app/hemma/internal/notify"
	"github.com/hemma-app/hemma/internal/reconcile"
	"github.com/hemma-app/hemma/internal/rooms"
	"github.com/hemma-app/hemma/internal/status"
	"github.com/hemma-app/hemma/internal/store"
	"go.uber.org/zap"
)

// Engine consumes bus events and applies them to local state.
type Engine struct {
	bus    *bus.Bus
	notify *notify.Store
	rooms  *rooms.Projector
	syncer *reconcile.Syncer
	selfID string
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates the sync engine. selfID is the session's own participant id;
// echoes of the session's outbound messages update previews but never the
// unread counter.
func New(b *bus.Bus, n *notify.Store, p *rooms.Projector, s *reconcile.Syncer, selfID string, logger *zap.Logger) *Engine {
	return &Engine{bus: b, notify: n, rooms: p, syncer: s, selfID: selfID, logger: logger}
}

// Start subscribes to the bus and begins routing. Idempotent.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)

	pushCh, unsubPush := e.bus.Subscribe("push.", 256)
	chatCh, unsubChat := e.bus.Subscribe("chat.", 256)
	connCh, unsubConn := e.bus.Subscribe("conn.", 64)

	go func() {
		defer unsubPush()
		defer unsubChat()
		defer unsubConn()
		e.run(ctx, pushCh, chatCh, connCh)
	}()
}

// Stop ends routing. Events published after Stop are dropped.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// HandleChat is the handler installed on every chat topic subscription. It
// republishes inbound events on the bus so routing stays single-threaded.
func (e *Engine) HandleChat(evt chat.Event) {
	e.bus.Publish(bus.Event{
		Kind:      "chat.message",
		Timestamp: time.Now(),
		Payload:   evt,
	})
}

func (e *Engine) run(ctx context.Context, pushCh, chatCh, connCh <-chan bus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-pushCh:
			e.handlePush(evt)
		case evt := <-chatCh:
			e.handleChat(evt)
		case evt := <-connCh:
			e.handleConn(ctx, evt)
		}
	}
}

func (e *Engine) handlePush(evt bus.Event) {
	n, ok := evt.Payload.(*store.Notification)
	if !ok {
		e.logger.Warn("unexpected push payload", zap.String("kind", evt.Kind))
		return
	}
	if err := e.notify.Add(n); err != nil {
		e.logger.Error("ingest notification", zap.Int64("id", n.ID), zap.Error(err))
	}
}

func (e *Engine) handleChat(evt bus.Event) {
	ce, ok := evt.Payload.(chat.Event)
	if !ok {
		e.logger.Warn("unexpected chat payload", zap.String("kind", evt.Kind))
		return
	}
	u, ok := roomUpdate(ce, e.selfID)
	if !ok {
		e.logger.Warn("dropping chat event without room identity", zap.String("topic", ce.Topic))
		return
	}
	if err := e.rooms.Apply(u); err != nil {
		e.logger.Error("apply room update", zap.String("room", u.RoomID), zap.Error(err))
	}
}

// handleConn kicks a reconciliation pass when the push stream reconnects,
// because anything pushed during the outage is gone for good.
func (e *Engine) handleConn(ctx context.Context, evt bus.Event) {
	change, ok := evt.Payload.(status.Change)
	if !ok || change.Channel != "stream" || change.To != status.Connected {
		return
	}
	if change.From != status.Reconnecting && change.From != status.Connecting {
		return
	}
	e.logger.Info("stream connected, reconciling cache")
	go func() {
		if err := e.syncer.Run(ctx); err != nil {
			e.logger.Error("reconciliation failed", zap.Error(err))
		}
	}()
}

// roomUpdate derives the summary patch for one inbound chat event.
func roomUpdate(ce chat.Event, selfID string) (rooms.Update, bool) {
	roomID := ce.Message.RoomID
	if roomID == "" {
		return rooms.Update{}, false
	}
	kind := ce.Room.Kind
	if kind == "" {
		kind = store.RoomDirect
	}

	u := rooms.Update{RoomID: roomID, Kind: kind}
	if ce.Room.Name != "" {
		u.Name = &ce.Room.Name
	}
	if ce.Room.Thumbnail != "" {
		u.Thumbnail = &ce.Room.Thumbnail
	}
	if ce.Room.Participants > 0 {
		u.Participants = &ce.Room.Participants
	}

	preview := previewOf(ce.Message)
	u.Preview = &preview
	if ce.Message.SentAt > 0 {
		u.LastActivityAt = &ce.Message.SentAt
	}
	if selfID == "" || ce.Message.SenderID != selfID {
		one := 1
		u.UnreadDelta = &one
	}
	return u, true
}

func previewOf(m chat.Message) string {
	body := m.Body
	switch m.Kind {
	case chat.KindImage:
		body = "[photo]"
	case chat.KindFile:
		body = "[file]"
	}
	if m.SenderName != "" {
		return m.SenderName + ": " + body
	}
	return body
}
