package notify

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/hemma-app/hemma/internal/bus"
	"github.com/hemma-app/hemma/internal/store"
	"go.uber.org/zap"
)

func testStore(t *testing.T) (*Store, *store.DB, *bus.Bus) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	b := bus.New()
	s, err := New(db, b, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return s, db, b
}

func mustAdd(t *testing.T, s *Store, n *store.Notification) {
	t.Helper()
	if err := s.Add(n); err != nil {
		t.Fatal(err)
	}
}

// checkInvariant verifies unreadCount == count of unread entries in the list.
func checkInvariant(t *testing.T, s *Store) {
	t.Helper()
	want := 0
	for _, n := range s.Snapshot() {
		if !n.Read {
			want++
		}
	}
	if got := s.UnreadCount(); got != want {
		t.Fatalf("UnreadCount() = %d, want %d (recomputed from snapshot)", got, want)
	}
}

func TestAddInsertsAtHead(t *testing.T) {
	s, _, _ := testStore(t)

	mustAdd(t, s, &store.Notification{ID: 1, Category: "ORDER", TitleTmpl: "first"})
	mustAdd(t, s, &store.Notification{ID: 2, Category: "COMMENT", TitleTmpl: "second"})
	mustAdd(t, s, &store.Notification{ID: 3, Category: "ORDER", TitleTmpl: "third"})

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d, want 3", len(snap))
	}
	if snap[0].ID != 3 || snap[1].ID != 2 || snap[2].ID != 1 {
		t.Errorf("order = [%d %d %d], want [3 2 1]", snap[0].ID, snap[1].ID, snap[2].ID)
	}
	if s.UnreadCount() != 3 {
		t.Errorf("unread = %d, want 3", s.UnreadCount())
	}
	checkInvariant(t, s)
}

func TestAddDuplicateUpdatesInPlace(t *testing.T) {
	s, _, _ := testStore(t)

	mustAdd(t, s, &store.Notification{ID: 1, TitleTmpl: "v1"})
	mustAdd(t, s, &store.Notification{ID: 2, TitleTmpl: "other"})
	mustAdd(t, s, &store.Notification{ID: 1, TitleTmpl: "v2"})

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len = %d, want 2 (duplicate id must not grow the list)", len(snap))
	}
	if snap[1].ID != 1 || snap[1].TitleTmpl != "v2" {
		t.Errorf("entry 1 = %+v, want updated in place", snap[1])
	}
	checkInvariant(t, s)
}

func TestAddWithoutServerID(t *testing.T) {
	s, _, _ := testStore(t)

	n1 := &store.Notification{Category: "SYSTEM", TitleTmpl: "no id"}
	n2 := &store.Notification{Category: "SYSTEM", TitleTmpl: "also no id"}
	mustAdd(t, s, n1)
	mustAdd(t, s, n2)

	if n1.ID >= 0 || n2.ID >= 0 {
		t.Errorf("local ids = %d, %d, want negative", n1.ID, n2.ID)
	}
	if n1.ID == n2.ID {
		t.Errorf("local ids collided: %d", n1.ID)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	s, _, b := testStore(t)
	mustAdd(t, s, &store.Notification{ID: 1})
	mustAdd(t, s, &store.Notification{ID: 2})

	ch, unsub := b.Subscribe("notify.", 10)
	defer unsub()

	if err := s.MarkRead(1); err != nil {
		t.Fatal(err)
	}
	if s.UnreadCount() != 1 {
		t.Errorf("unread = %d, want 1", s.UnreadCount())
	}

	// Second mark and unknown id must change nothing and emit nothing.
	if err := s.MarkRead(1); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkRead(999); err != nil {
		t.Fatal(err)
	}
	if s.UnreadCount() != 1 {
		t.Errorf("unread = %d after repeat marks, want 1", s.UnreadCount())
	}

	events := len(ch)
	if events != 1 {
		t.Errorf("notify.updated events = %d, want 1", events)
	}
	checkInvariant(t, s)
}

func TestMarkAllRead(t *testing.T) {
	s, _, _ := testStore(t)
	for id := int64(1); id <= 4; id++ {
		mustAdd(t, s, &store.Notification{ID: id})
	}
	if err := s.MarkRead(2); err != nil {
		t.Fatal(err)
	}

	if err := s.MarkAllRead(); err != nil {
		t.Fatal(err)
	}
	if s.UnreadCount() != 0 {
		t.Errorf("unread = %d, want 0", s.UnreadCount())
	}
	// A further add is unread again.
	mustAdd(t, s, &store.Notification{ID: 5})
	if s.UnreadCount() != 1 {
		t.Errorf("unread = %d after add, want 1", s.UnreadCount())
	}
	checkInvariant(t, s)
}

func TestDeleteMaintainsInvariant(t *testing.T) {
	s, _, _ := testStore(t)
	mustAdd(t, s, &store.Notification{ID: 1})
	mustAdd(t, s, &store.Notification{ID: 2, Read: true})
	mustAdd(t, s, &store.Notification{ID: 3})

	if err := s.Delete(3); err != nil {
		t.Fatal(err)
	}
	if s.UnreadCount() != 1 {
		t.Errorf("unread = %d, want 1", s.UnreadCount())
	}
	if err := s.Delete(3); err != nil {
		t.Fatal(err)
	}
	if len(s.Snapshot()) != 2 {
		t.Errorf("len = %d, want 2", len(s.Snapshot()))
	}

	if err := s.DeleteAll(); err != nil {
		t.Fatal(err)
	}
	if len(s.Snapshot()) != 0 || s.UnreadCount() != 0 {
		t.Errorf("after DeleteAll: len=%d unread=%d, want 0/0", len(s.Snapshot()), s.UnreadCount())
	}
	checkInvariant(t, s)
}

func TestViewsRenderTemplates(t *testing.T) {
	s, _, _ := testStore(t)
	mustAdd(t, s, &store.Notification{
		ID:        1,
		Category:  "ORDER",
		TitleTmpl: "{item} was shipped",
		BodyTmpl:  "Track {item} with code {code}",
		Context:   map[string]string{"item": "Armchair"},
	})

	views := s.Views()
	if len(views) != 1 {
		t.Fatalf("len = %d, want 1", len(views))
	}
	if views[0].Title != "Armchair was shipped" {
		t.Errorf("title = %q", views[0].Title)
	}
	// Missing context keys stay verbatim.
	if views[0].Body != "Track Armchair with code {code}" {
		t.Errorf("body = %q", views[0].Body)
	}
}

func TestReplaceAllVersionGuard(t *testing.T) {
	s, _, _ := testStore(t)
	mustAdd(t, s, &store.Notification{ID: 1})

	fresh := []*store.Notification{
		{ID: 2, TitleTmpl: "new on server"},
		{ID: 1, TitleTmpl: "updated", Read: true},
	}
	if err := s.ReplaceAll(fresh, 1); err != nil {
		t.Fatal(err)
	}
	if s.Version() != 1 {
		t.Errorf("version = %d, want 1", s.Version())
	}
	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].ID != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if s.UnreadCount() != 1 {
		t.Errorf("unread = %d, want 1", s.UnreadCount())
	}

	// A snapshot with the same or older version lost the race and is discarded.
	err := s.ReplaceAll([]*store.Notification{{ID: 9}}, 1)
	if !errors.Is(err, ErrStaleVersion) {
		t.Fatalf("err = %v, want ErrStaleVersion", err)
	}
	if len(s.Snapshot()) != 2 {
		t.Errorf("stale replace mutated state")
	}
	checkInvariant(t, s)
}

func TestPersistenceAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	s, err := New(db, bus.New(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	mustAdd(t, s, &store.Notification{ID: 1, TitleTmpl: "a"})
	mustAdd(t, s, &store.Notification{ID: 2, TitleTmpl: "b"})
	if err := s.MarkRead(1); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db2, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db2.Close() }()
	if _, err := db2.Migrate(); err != nil {
		t.Fatal(err)
	}
	s2, err := New(db2, bus.New(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	snap := s2.Snapshot()
	if len(snap) != 2 || snap[0].ID != 2 || snap[1].ID != 1 {
		t.Fatalf("reloaded snapshot = %+v", snap)
	}
	if !snap[1].Read || snap[0].Read {
		t.Errorf("read flags lost across reload: %+v", snap)
	}
	if s2.UnreadCount() != 1 {
		t.Errorf("unread = %d, want 1", s2.UnreadCount())
	}

	// New records keep inserting above the reloaded ones.
	if err := s2.Add(&store.Notification{ID: 3, TitleTmpl: "c"}); err != nil {
		t.Fatal(err)
	}
	if got := s2.Snapshot()[0].ID; got != 3 {
		t.Errorf("head after reload add = %d, want 3", got)
	}
}
