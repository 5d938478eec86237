package uow

import (
	"sync"

	"github.com/example/erp-event-pipeline/internal/domain/aggregate"
	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/google/uuid"
)

// State of one unit-of-work execution.
type State int

const (
	StateOpen State = iota
	StateCollecting
	StateCommitting
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCollecting:
		return "collecting"
	case StateCommitting:
		return "committing"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Work is the handle passed to the function run by Manager.Execute.
type Work struct {
	mu      sync.Mutex
	token   string
	state   State
	tx      Tx
	tracked []aggregate.Aggregate
	seen    map[aggregate.Aggregate]struct{}
}

func newWork() *Work {
	return &Work{
		token: uuid.New().String(),
		state: StateOpen,
		seen:  make(map[aggregate.Aggregate]struct{}),
	}
}

// Token is the opaque identity of this execution.
func (w *Work) Token() string {
	return w.token
}

func (w *Work) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Work) setState(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

// Tx returns the transaction the work runs in.
func (w *Work) Tx() Tx {
	return w.tx
}

// Track registers touched aggregates. Tracking the same aggregate twice is a no-op.
func (w *Work) Track(aggs ...aggregate.Aggregate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, agg := range aggs {
		if agg == nil {
			continue
		}
		if _, ok := w.seen[agg]; ok {
			continue
		}
		w.seen[agg] = struct{}{}
		w.tracked = append(w.tracked, agg)
	}
}

// drain empties every tracked aggregate in tracking order.
func (w *Work) drain() event.Buffer {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := event.Buffer{Token: w.token}
	for _, agg := range w.tracked {
		buf.Events = append(buf.Events, agg.Drain()...)
	}
	return buf
}
