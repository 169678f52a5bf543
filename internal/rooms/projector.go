// Package rooms projects chat traffic into the per-kind room summary lists
// that back the conversation sidebars. Summaries are denormalized on write:
// each inbound event updates name, preview, activity and unread in place so
// reads are a plain ordered scan.
package rooms

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hemma-app/hemma/internal/bus"
	"github.com/hemma-app/hemma/internal/store"
	"go.uber.org/zap"
)

// Update is a partial room summary change. Nil fields are left untouched,
// so a preview-only event cannot wipe the room name.
type Update struct {
	RoomID         string
	Kind           string
	Name           *string
	Thumbnail      *string
	Preview        *string
	LastActivityAt *int64
	UnreadDelta    *int // relative adjustment, result clamped at zero
	UnreadCount    *int // absolute set, wins over UnreadDelta
	Participants   *int
}

// Changed is the payload of room.updated events.
type Changed struct {
	RoomID string
	Kind   string
}

// Projector maintains the direct and group room summary collections,
// ordered by most recent activity, write-through to the cache database.
type Projector struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger

	mu    sync.Mutex
	lists map[string][]*store.Room
}

// New loads both collections from the cache database.
func New(db *store.DB, b *bus.Bus, logger *zap.Logger) (*Projector, error) {
	lists := make(map[string][]*store.Room, 2)
	for _, kind := range []string{store.RoomDirect, store.RoomGroup} {
		list, err := db.ListRooms(kind)
		if err != nil {
			return nil, fmt.Errorf("load %s rooms: %w", kind, err)
		}
		lists[kind] = list
	}
	logger.Info("room summaries loaded",
		zap.Int("direct", len(lists[store.RoomDirect])),
		zap.Int("group", len(lists[store.RoomGroup])))
	return &Projector{db: db, bus: b, logger: logger, lists: lists}, nil
}

// Rooms returns a copy of one collection, most recent activity first.
func (p *Projector) Rooms(kind string) []*store.Room {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.lists[kind]
	out := make([]*store.Room, len(list))
	for i, r := range list {
		c := *r
		out[i] = &c
	}
	return out
}

// Get returns one room summary, or nil when unknown.
func (p *Projector) Get(roomID, kind string) *store.Room {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.lists[kind] {
		if r.RoomID == roomID {
			c := *r
			return &c
		}
	}
	return nil
}

// Apply folds one update into the matching collection. Unknown rooms are
// created; known rooms are patched in place. An update that changes no
// visible field is a complete no-op: nothing persisted, nothing published.
func (p *Projector) Apply(u Update) error {
	if u.RoomID == "" {
		return fmt.Errorf("room update without room id")
	}
	if u.Kind != store.RoomDirect && u.Kind != store.RoomGroup {
		return fmt.Errorf("unknown room kind %q", u.Kind)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	room := p.find(u.RoomID, u.Kind)
	created := room == nil
	if created {
		room = &store.Room{RoomID: u.RoomID, Kind: u.Kind}
	}

	before := *room
	patch(room, u)

	if !created && *room == before {
		return nil
	}

	if err := p.db.UpsertRoom(room); err != nil {
		return fmt.Errorf("persist room %s: %w", room.RoomID, err)
	}

	if created {
		p.lists[u.Kind] = append(p.lists[u.Kind], room)
	}
	if created || room.LastActivityAt != before.LastActivityAt {
		p.resort(u.Kind)
	}

	if p.bus != nil {
		p.bus.Publish(bus.Event{
			Kind:      "room.updated",
			Timestamp: time.Now(),
			Payload:   Changed{RoomID: room.RoomID, Kind: room.Kind},
		})
	}
	return nil
}

// MarkRead zeroes the unread counter of one room. Unknown rooms are a no-op.
func (p *Projector) MarkRead(roomID, kind string) error {
	if p.Get(roomID, kind) == nil {
		return nil
	}
	zero := 0
	return p.Apply(Update{RoomID: roomID, Kind: kind, UnreadCount: &zero})
}

func (p *Projector) find(roomID, kind string) *store.Room {
	for _, r := range p.lists[kind] {
		if r.RoomID == roomID {
			return r
		}
	}
	return nil
}

// resort restores recency order. Stable so rooms with equal activity keep
// their relative order across repeated updates.
func (p *Projector) resort(kind string) {
	sort.SliceStable(p.lists[kind], func(i, j int) bool {
		return p.lists[kind][i].LastActivityAt > p.lists[kind][j].LastActivityAt
	})
}

func patch(room *store.Room, u Update) {
	if u.Name != nil {
		room.Name = *u.Name
	}
	if u.Thumbnail != nil {
		room.Thumbnail = *u.Thumbnail
	}
	if u.Preview != nil {
		room.Preview = *u.Preview
	}
	if u.LastActivityAt != nil && *u.LastActivityAt > room.LastActivityAt {
		room.LastActivityAt = *u.LastActivityAt
	}
	if u.Participants != nil {
		room.Participants = *u.Participants
	}
	switch {
	case u.UnreadCount != nil:
		room.UnreadCount = *u.UnreadCount
	case u.UnreadDelta != nil:
		room.UnreadCount += *u.UnreadDelta
	}
	if room.UnreadCount < 0 {
		room.UnreadCount = 0
	}
}
