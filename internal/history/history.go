package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of presence or lifecycle event.
type EventType string

const (
	EventDevicePresent EventType = "device_present"
	EventDeviceAbsent  EventType = "device_absent"
	EventAppStart      EventType = "app_start"
	EventAppStop       EventType = "app_stop"
	EventProbeError    EventType = "probe_error"
)

// Event is one entry of the watcher's history.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Device     string    `json:"device"`
	App        string    `json:"app"`
	Failures   int       `json:"failures"`
	Detail     string    `json:"detail,omitempty"`
}

// NewEvent stamps an event with a fresh ID and the given time.
func NewEvent(t EventType, at time.Time, device, app string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: at.UTC(),
		Device:     device,
		App:        app,
	}
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Reader is implemented by sinks that can return what they stored,
// newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}
