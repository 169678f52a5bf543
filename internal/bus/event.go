package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kind namespaces used across the daemon:
//
//	push.*      decoded notification stream events
//	chat.*      inbound chat messages
//	conn.*      channel connection state changes
//	notify.*    notification cache mutations
//	room.*      room summary updates
//	reconcile.* reconciliation outcomes
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
