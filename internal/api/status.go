package api

import (
	"github.com/hemma-app/hemma/internal/status"
)

// StatusService reports connection state for both channels.
type StatusService struct {
	stream *status.Machine
	chat   *status.Machine
}

// Status is the combined daemon status report.
type Status struct {
	Stream string `json:"stream"`
	Chat   string `json:"chat"`
	Unread int    `json:"unread"`
}

// NewStatusService creates the status service.
func NewStatusService(stream, chat *status.Machine) *StatusService {
	return &StatusService{stream: stream, chat: chat}
}

// Report returns the current state of both channels.
func (s *StatusService) Report(unread int) Status {
	return Status{
		Stream: string(s.stream.Current()),
		Chat:   string(s.chat.Current()),
		Unread: unread,
	}
}
