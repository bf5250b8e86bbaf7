package history

import (
	"context"
	"time"
)

// EventType defines the kind of supervision event.
type EventType string

const (
	EventStart   EventType = "start"   // manual start
	EventCrash   EventType = "crash"   // unexpected worker death detected
	EventRestart EventType = "restart" // successful auto-restart
	EventGiveup  EventType = "giveup"  // finalized to error after exhausting attempts
	EventStop    EventType = "stop"    // manual stop
)

// Event represents a supervision event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	Owner      int64     `json:"owner"`
	RunID      string    `json:"run_id,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for supervision events (analytics/audit systems).
// Implementations must be safe for concurrent use. Delivery is best-effort;
// the supervisor never blocks a state transition on a sink error.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
