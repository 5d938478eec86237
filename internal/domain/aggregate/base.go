package aggregate

import (
	"sync"

	"github.com/example/erp-event-pipeline/internal/event"
)

// Aggregate is anything a unit of work can drain pending events from.
type Aggregate interface {
	AggregateID() string
	AggregateType() string
	Drain() []event.Event
}

// Root records events raised by an aggregate until they are drained.
// Embed it by value and call Init once the identity is known.
type Root struct {
	mu       sync.Mutex
	id       string
	typ      string
	tenantID string
	pending  []event.Event
}

// Init sets the identity used to stamp emitted events.
func (r *Root) Init(id, aggregateType, tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = id
	r.typ = aggregateType
	r.tenantID = tenantID
}

func (r *Root) AggregateID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

func (r *Root) AggregateType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typ
}

// Emit appends an event to the pending list. Nothing is dispatched here.
func (r *Root) Emit(payload event.Payload) event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := event.New(r.id, r.typ, r.tenantID, payload)
	r.pending = append(r.pending, e)
	return e
}

// Pending returns a copy of the events not yet drained.
func (r *Root) Pending() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.pending...)
}

// Drain empties and returns the pending list. A second call returns nothing.
func (r *Root) Drain() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	drained := r.pending
	r.pending = nil
	return drained
}
