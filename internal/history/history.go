package history

import (
	"context"
	"time"
)

// EventType defines the kind of recorded activity.
type EventType string

const (
	EventLaunch       EventType = "launch"
	EventLaunchFailed EventType = "launch_failed"
	EventNotify       EventType = "notify"
	EventSend         EventType = "send"
)

// Event is one launch or delivery exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Path       string    `json:"path,omitempty"`
	Target     string    `json:"target,omitempty"`
	Event      string    `json:"event,omitempty"`
	PID        uint32    `json:"pid"`
	Handle     string    `json:"handle,omitempty"`
	Code       int       `json:"code,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
