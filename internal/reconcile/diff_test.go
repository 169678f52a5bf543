package reconcile

import (
	"testing"

	"github.com/hemma-app/hemma/internal/store"
)

func ids(list []*store.Notification) []int64 {
	out := make([]int64, len(list))
	for i, n := range list {
		out[i] = n.ID
	}
	return out
}

func TestReconcileIdentical(t *testing.T) {
	local := []*store.Notification{
		{ID: 1, Category: "ORDER", TitleTmpl: "a", Read: true},
		{ID: 2, Category: "COMMENT", TitleTmpl: "b"},
	}
	server := []*store.Notification{
		{ID: 1, Category: "ORDER", TitleTmpl: "a", Read: true},
		{ID: 2, Category: "COMMENT", TitleTmpl: "b"},
	}

	r := Reconcile(local, server)
	if !r.Empty() {
		t.Errorf("identical sides produced a diff: %+v", r)
	}
	if len(r.Conflicts) != 0 {
		t.Errorf("conflicts = %+v, want none", r.Conflicts)
	}
}

func TestReconcileClassifiesEveryRecord(t *testing.T) {
	local := []*store.Notification{
		{ID: 1, TitleTmpl: "same"},
		{ID: 2, TitleTmpl: "old title"},
		{ID: 3, TitleTmpl: "gone from server"},
		{ID: -1, TitleTmpl: "never acked"},
	}
	server := []*store.Notification{
		{ID: 1, TitleTmpl: "same"},
		{ID: 2, TitleTmpl: "new title"},
		{ID: 4, TitleTmpl: "brand new"},
	}

	r := Reconcile(local, server)

	if got := ids(r.NewOnServer); len(got) != 1 || got[0] != 4 {
		t.Errorf("NewOnServer = %v, want [4]", got)
	}
	if got := ids(r.UpdatedOnServer); len(got) != 1 || got[0] != 2 {
		t.Errorf("UpdatedOnServer = %v, want [2]", got)
	}
	if got := ids(r.DeletedOnServer); len(got) != 1 || got[0] != 3 {
		t.Errorf("DeletedOnServer = %v, want [3]", got)
	}
	if got := ids(r.NewLocally); len(got) != 1 || got[0] != -1 {
		t.Errorf("NewLocally = %v, want [-1]", got)
	}

	classified := len(r.NewOnServer) + len(r.UpdatedOnServer) + len(r.DeletedOnServer) + len(r.NewLocally)
	// 1 identical record on each side, everything else in exactly one bucket.
	if classified != 4 {
		t.Errorf("classified %d records, want 4", classified)
	}
}

func TestReconcileReadStateDivergence(t *testing.T) {
	local := []*store.Notification{
		{ID: 1, TitleTmpl: "order update"},
	}
	server := []*store.Notification{
		{ID: 1, TitleTmpl: "order update", Read: true},
		{ID: 2, TitleTmpl: "new comment"},
	}

	r := Reconcile(local, server)

	if got := ids(r.UpdatedOnServer); len(got) != 1 || got[0] != 1 {
		t.Errorf("UpdatedOnServer = %v, want [1]", got)
	}
	if got := ids(r.NewOnServer); len(got) != 1 || got[0] != 2 {
		t.Errorf("NewOnServer = %v, want [2]", got)
	}
	if len(r.Conflicts) != 1 {
		t.Fatalf("conflicts = %+v, want exactly one", r.Conflicts)
	}
	c := r.Conflicts[0]
	if c.ID != 1 || c.Field != "read" || c.Local != "false" || c.Server != "true" {
		t.Errorf("conflict = %+v", c)
	}
}

func TestReconcileContextConflict(t *testing.T) {
	local := []*store.Notification{
		{ID: 5, TitleTmpl: "{item} shipped", Context: map[string]string{"item": "Desk"}},
	}
	server := []*store.Notification{
		{ID: 5, TitleTmpl: "{item} shipped", Context: map[string]string{"item": "Desk", "code": "X1"}},
	}

	r := Reconcile(local, server)
	if len(r.Conflicts) != 1 || r.Conflicts[0].Field != "context" {
		t.Errorf("conflicts = %+v, want one context conflict", r.Conflicts)
	}
}

func TestReconcileEmptySides(t *testing.T) {
	if r := Reconcile(nil, nil); !r.Empty() {
		t.Errorf("nil vs nil produced a diff: %+v", r)
	}

	server := []*store.Notification{{ID: 1}}
	r := Reconcile(nil, server)
	if got := ids(r.NewOnServer); len(got) != 1 || got[0] != 1 {
		t.Errorf("NewOnServer = %v, want [1]", got)
	}

	local := []*store.Notification{{ID: 1}}
	r = Reconcile(local, nil)
	if got := ids(r.DeletedOnServer); len(got) != 1 || got[0] != 1 {
		t.Errorf("DeletedOnServer = %v, want [1]", got)
	}
}
