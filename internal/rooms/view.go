package rooms

import (
	"fmt"
	"time"
)

// View is a display-ready room summary.
type View struct {
	RoomID       string `json:"room_id"`
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	Thumbnail    string `json:"thumbnail,omitempty"`
	Preview      string `json:"preview,omitempty"`
	LastActivity string `json:"last_activity"`
	UnreadCount  int    `json:"unread_count"`
	Participants int    `json:"participants,omitempty"`
}

// Views returns one collection rendered for display, most recent first.
func (p *Projector) Views(kind string, now time.Time) []View {
	list := p.Rooms(kind)
	out := make([]View, len(list))
	for i, r := range list {
		out[i] = View{
			RoomID:       r.RoomID,
			Kind:         r.Kind,
			Name:         r.Name,
			Thumbnail:    r.Thumbnail,
			Preview:      r.Preview,
			LastActivity: RelativeTime(r.LastActivityAt, now),
			UnreadCount:  r.UnreadCount,
			Participants: r.Participants,
		}
	}
	return out
}

// RelativeTime formats a unix-millisecond timestamp relative to now, the
// way the conversation sidebar shows it. Zero means no activity yet.
func RelativeTime(unixMilli int64, now time.Time) string {
	if unixMilli <= 0 {
		return ""
	}
	ts := time.UnixMilli(unixMilli)
	d := now.Sub(ts)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return ts.Format("Jan 2")
	}
}
