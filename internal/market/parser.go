package market

import (
	"encoding/json"
	"fmt"

	"github.com/hemma-app/hemma/internal/store"
)

// wireNotification is the JSON shape the server uses for a notification,
// both in the REST snapshot and on the push stream.
type wireNotification struct {
	ID        int64             `json:"id"`
	Category  string            `json:"category"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Context   map[string]string `json:"context"`
	Redirect  string            `json:"redirect"`
	Read      bool              `json:"read"`
	CreatedAt int64             `json:"created_at"`
}

// ParseNotification decodes one wire notification into a store record.
// Records without a positive server id are rejected; callers decide whether
// that is a skip (stream) or a logged warning (snapshot).
func ParseNotification(data []byte) (*store.Notification, error) {
	var w wireNotification
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if w.ID <= 0 {
		return nil, fmt.Errorf("notification missing server id")
	}
	ctx := w.Context
	if ctx == nil {
		ctx = map[string]string{}
	}
	return &store.Notification{
		ID:        w.ID,
		Category:  w.Category,
		TitleTmpl: w.Title,
		BodyTmpl:  w.Body,
		Context:   ctx,
		Redirect:  w.Redirect,
		Read:      w.Read,
		CreatedAt: w.CreatedAt,
	}, nil
}
