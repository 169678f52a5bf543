package api

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hemma-app/hemma/internal/bus"
	"github.com/hemma-app/hemma/internal/chat"
	"github.com/hemma-app/hemma/internal/rooms"
	"github.com/hemma-app/hemma/internal/status"
	"github.com/hemma-app/hemma/internal/store"
	"go.uber.org/zap"
)

func newRoomFixture(t *testing.T) (*RoomService, *rooms.Projector) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	p, err := rooms.New(db, bus.New(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	// Chat client never connects in these tests; Publish is a logged no-op.
	c := chat.NewClient("http://127.0.0.1:0", "tok-1", 50*time.Millisecond,
		status.NewMachine("chat", nil), zap.NewNop())
	svc := NewRoomService(p, c, func(chat.Event) {}, "me", zap.NewNop())
	return svc, p
}

func TestListValidatesKind(t *testing.T) {
	svc, p := newRoomFixture(t)

	ts := int64(1000)
	if err := p.Apply(rooms.Update{RoomID: "r1", Kind: store.RoomDirect, LastActivityAt: &ts}); err != nil {
		t.Fatal(err)
	}

	views, err := svc.List(store.RoomDirect)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].RoomID != "r1" {
		t.Errorf("views = %+v", views)
	}

	if _, err := svc.List("broadcast"); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestRoomMarkRead(t *testing.T) {
	svc, p := newRoomFixture(t)

	one := 1
	if err := p.Apply(rooms.Update{RoomID: "r1", Kind: store.RoomGroup, UnreadDelta: &one}); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkRead("r1", store.RoomGroup); err != nil {
		t.Fatal(err)
	}
	if got := p.Get("r1", store.RoomGroup).UnreadCount; got != 0 {
		t.Errorf("unread = %d, want 0", got)
	}
}

func TestSendValidation(t *testing.T) {
	svc, _ := newRoomFixture(t)
	ctx := t.Context()

	if err := svc.Send(ctx, "", store.RoomDirect, "hi"); err == nil {
		t.Error("empty room id accepted")
	}
	if err := svc.Send(ctx, "r1", "nope", "hi"); err == nil {
		t.Error("unknown kind accepted")
	}
	if err := svc.Send(ctx, "r1", store.RoomDirect, ""); err == nil {
		t.Error("empty body accepted")
	}
	// Valid send while disconnected is fire-and-forget, not an error.
	if err := svc.Send(ctx, "r1", store.RoomDirect, "hello"); err != nil {
		t.Errorf("send returned %v", err)
	}
}

func TestJoinLeaveValidation(t *testing.T) {
	svc, _ := newRoomFixture(t)
	ctx := t.Context()

	if err := svc.Join(ctx, "", store.RoomDirect); err == nil {
		t.Error("empty room id accepted")
	}
	if err := svc.Join(ctx, "r1", store.RoomDirect); err != nil {
		t.Errorf("join returned %v", err)
	}
	if err := svc.Leave(ctx, "r1", store.RoomDirect); err != nil {
		t.Errorf("leave returned %v", err)
	}
}
