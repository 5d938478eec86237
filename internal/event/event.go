package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload is implemented by every kind-specific event body.
// The set of payload types is closed: each one is registered in the codec table.
type Payload interface {
	EventKind() string
}

// Event is an immutable fact about a committed change.
type Event struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	AggregateID   string    `json:"aggregate_id"`
	AggregateType string    `json:"aggregate_type"`
	TenantID      string    `json:"tenant_id"`
	Payload       Payload   `json:"-"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// New wraps a payload in an envelope stamped with a fresh id and the current time.
func New(aggregateID, aggregateType, tenantID string, payload Payload) Event {
	return Event{
		ID:            uuid.New().String(),
		Kind:          payload.EventKind(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		TenantID:      tenantID,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

// Buffer holds the events captured for one unit-of-work execution.
type Buffer struct {
	Token  string
	Events []Event
}

// Len returns the number of buffered events.
func (b Buffer) Len() int {
	return len(b.Events)
}
