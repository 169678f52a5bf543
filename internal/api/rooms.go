package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hemma-app/hemma/internal/chat"
	"github.com/hemma-app/hemma/internal/rooms"
	"github.com/hemma-app/hemma/internal/store"
	"go.uber.org/zap"
)

// RoomService exposes the room summary lists and chat operations.
type RoomService struct {
	projector *rooms.Projector
	chat      *chat.Client
	handler   chat.Handler
	selfID    string
	logger    *zap.Logger
}

// NewRoomService creates the room service. handler is installed on every
// topic subscription so inbound traffic reaches the sync engine.
func NewRoomService(p *rooms.Projector, c *chat.Client, handler chat.Handler, selfID string, logger *zap.Logger) *RoomService {
	return &RoomService{projector: p, chat: c, handler: handler, selfID: selfID, logger: logger}
}

// List returns one room collection rendered for display.
func (s *RoomService) List(kind string) ([]rooms.View, error) {
	if kind != store.RoomDirect && kind != store.RoomGroup {
		return nil, fmt.Errorf("unknown room kind %q", kind)
	}
	return s.projector.Views(kind, time.Now()), nil
}

// Join subscribes to a room's chat topic. Joining twice is harmless.
func (s *RoomService) Join(ctx context.Context, roomID, kind string) error {
	topic, err := topicOf(roomID, kind)
	if err != nil {
		return err
	}
	s.chat.Subscribe(ctx, topic, s.handler)
	return nil
}

// Leave drops a room's chat topic subscription.
func (s *RoomService) Leave(ctx context.Context, roomID, kind string) error {
	topic, err := topicOf(roomID, kind)
	if err != nil {
		return err
	}
	s.chat.Unsubscribe(ctx, topic)
	return nil
}

// Send publishes a text message to a room. Fire-and-forget like the
// underlying channel; the client message id lets the server deduplicate.
func (s *RoomService) Send(ctx context.Context, roomID, kind, body string) error {
	topic, err := topicOf(roomID, kind)
	if err != nil {
		return err
	}
	if body == "" {
		return fmt.Errorf("empty message body")
	}
	s.chat.Publish(ctx, topic, chat.Message{
		RoomID:      roomID,
		SenderID:    s.selfID,
		Body:        body,
		Kind:        chat.KindText,
		ClientMsgID: uuid.NewString(),
		SentAt:      time.Now().UnixMilli(),
	})
	return nil
}

// MarkRead zeroes a room's unread counter.
func (s *RoomService) MarkRead(roomID, kind string) error {
	if kind != store.RoomDirect && kind != store.RoomGroup {
		return fmt.Errorf("unknown room kind %q", kind)
	}
	return s.projector.MarkRead(roomID, kind)
}

func topicOf(roomID, kind string) (string, error) {
	if roomID == "" {
		return "", fmt.Errorf("empty room id")
	}
	if kind != store.RoomDirect && kind != store.RoomGroup {
		return "", fmt.Errorf("unknown room kind %q", kind)
	}
	return kind + "/" + roomID, nil
}
