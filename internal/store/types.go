package store

// Notification represents a cached server notification.
// IDs are server-assigned and stable across reconnects; records that arrive
// without one get a negative local sequence id so the two ranges never collide.
type Notification struct {
	ID           int64
	Category     string
	TitleTmpl    string
	BodyTmpl     string
	Context      map[string]string
	Redirect     string
	Read         bool
	CreatedAt    int64
	Position     int64 // insertion order, higher = newer
}

// Room represents a cached chat room summary. Kind is "direct" or "group".
// Rooms are never deleted by the daemon; leaving a room is a server concern.
type Room struct {
	RoomID         string
	Kind           string
	Name           string
	Thumbnail      string
	Preview        string
	LastActivityAt int64
	UnreadCount    int
	Participants   int
}

// Room kinds.
const (
	RoomDirect = "direct"
	RoomGroup  = "group"
)
