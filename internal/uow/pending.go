package uow

import (
	"sync"

	"github.com/example/erp-event-pipeline/internal/event"
)

// PendingRegistry holds drained buffers between flush and commit outcome,
// keyed by unit-of-work token. Each buffer is owned by exactly one execution.
type PendingRegistry struct {
	mu      sync.Mutex
	buffers map[string]event.Buffer
}

func NewPendingRegistry() *PendingRegistry {
	return &PendingRegistry{buffers: make(map[string]event.Buffer)}
}

// Stash stores buf under its token, replacing any previous value.
func (r *PendingRegistry) Stash(buf event.Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffers[buf.Token] = buf
}

// Take removes and returns the buffer for token.
func (r *PendingRegistry) Take(token string) (event.Buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf, ok := r.buffers[token]
	delete(r.buffers, token)
	return buf, ok
}

// Discard drops the buffer for token without returning it.
func (r *PendingRegistry) Discard(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buffers, token)
}

// Has reports whether a buffer is held for token.
func (r *PendingRegistry) Has(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.buffers[token]
	return ok
}

// Len returns the number of buffers awaiting an outcome.
func (r *PendingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}
