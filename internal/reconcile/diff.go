// Package reconcile compares the cached notification collection against a
// fresh server snapshot and converges the cache on the server's view. The
// server wins every conflict; the diff exists so divergence is visible in
// the logs, not to merge.
package reconcile

import (
	"fmt"
	"maps"

	"github.com/hemma-app/hemma/internal/store"
)

// FieldConflict records one field where the cached record and the server
// record disagree. Resolution is always the server value.
type FieldConflict struct {
	ID     int64  `json:"id"`
	Field  string `json:"field"`
	Local  string `json:"local"`
	Server string `json:"server"`
}

// Result is the classified difference between cache and server snapshot.
// Every record of either side lands in exactly one bucket or in none
// (identical on both sides).
type Result struct {
	NewOnServer     []*store.Notification
	NewLocally      []*store.Notification
	UpdatedOnServer []*store.Notification
	DeletedOnServer []*store.Notification
	Conflicts       []FieldConflict
}

// Empty reports whether the two sides were already identical.
func (r *Result) Empty() bool {
	return len(r.NewOnServer) == 0 && len(r.NewLocally) == 0 &&
		len(r.UpdatedOnServer) == 0 && len(r.DeletedOnServer) == 0
}

// Reconcile diffs the cached collection against the server snapshot.
//
// A cached record with a server-assigned (positive) id that is missing from
// the snapshot was deleted on the server. A cached record with a local
// (negative) id was never acknowledged by the server and is new locally;
// this daemon never creates notifications, so that bucket signals a sync
// fault upstream.
func Reconcile(local, server []*store.Notification) *Result {
	r := &Result{}

	byLocal := make(map[int64]*store.Notification, len(local))
	for _, n := range local {
		byLocal[n.ID] = n
	}
	byServer := make(map[int64]*store.Notification, len(server))
	for _, n := range server {
		byServer[n.ID] = n
	}

	for _, sn := range server {
		ln, ok := byLocal[sn.ID]
		if !ok {
			r.NewOnServer = append(r.NewOnServer, sn)
			continue
		}
		if conflicts := fieldConflicts(ln, sn); len(conflicts) > 0 {
			r.UpdatedOnServer = append(r.UpdatedOnServer, sn)
			r.Conflicts = append(r.Conflicts, conflicts...)
		}
	}

	for _, ln := range local {
		if _, ok := byServer[ln.ID]; ok {
			continue
		}
		if ln.ID < 0 {
			r.NewLocally = append(r.NewLocally, ln)
		} else {
			r.DeletedOnServer = append(r.DeletedOnServer, ln)
		}
	}

	return r
}

func fieldConflicts(local, server *store.Notification) []FieldConflict {
	var out []FieldConflict
	add := func(field string, l, s any) {
		out = append(out, FieldConflict{
			ID:     server.ID,
			Field:  field,
			Local:  fmt.Sprint(l),
			Server: fmt.Sprint(s),
		})
	}

	if local.Category != server.Category {
		add("category", local.Category, server.Category)
	}
	if local.TitleTmpl != server.TitleTmpl {
		add("title", local.TitleTmpl, server.TitleTmpl)
	}
	if local.BodyTmpl != server.BodyTmpl {
		add("body", local.BodyTmpl, server.BodyTmpl)
	}
	if local.Redirect != server.Redirect {
		add("redirect", local.Redirect, server.Redirect)
	}
	if local.Read != server.Read {
		add("read", local.Read, server.Read)
	}
	if local.CreatedAt != server.CreatedAt {
		add("created_at", local.CreatedAt, server.CreatedAt)
	}
	if !maps.Equal(local.Context, server.Context) {
		add("context", local.Context, server.Context)
	}
	return out
}
