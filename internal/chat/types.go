package chat

// Message is one chat message on the wire. Messages are consumed
// transiently to update room summaries; history lives server-side.
type Message struct {
	RoomID      string `json:"room_id"`
	SenderID    string `json:"sender_id"`
	SenderName  string `json:"sender_name,omitempty"`
	Body        string `json:"body"`
	Kind        string `json:"kind"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
	SentAt      int64  `json:"sent_at"`
}

// Message kinds.
const (
	KindText  = "text"
	KindImage = "image"
	KindFile  = "file"
)

// RoomInfo carries optional room metadata on inbound frames.
// Zero-valued fields mean "not present in this event".
type RoomInfo struct {
	Kind         string `json:"kind,omitempty"`
	Name         string `json:"name,omitempty"`
	Thumbnail    string `json:"thumbnail,omitempty"`
	Participants int    `json:"participants,omitempty"`
}

// Event is one inbound topic event delivered to a subscription handler.
type Event struct {
	Topic   string   `json:"topic"`
	Room    RoomInfo `json:"room"`
	Message Message  `json:"message"`
}

// Handler receives inbound events for one subscribed topic.
type Handler func(Event)

// frame is the wire envelope in both directions.
type frame struct {
	Type        string    `json:"type"`
	Topic       string    `json:"topic,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Room        *RoomInfo `json:"room,omitempty"`
	Message     *Message  `json:"message,omitempty"`
}

// frame types.
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	framePublish     = "publish"
	frameMessage     = "message"
)
