package uow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/sirupsen/logrus"
)

// DefaultMaxDepth bounds how many nested dispatch rounds a chain of
// consumer writes may trigger.
const DefaultMaxDepth = 8

var (
	ErrDispatchDepthExceeded = errors.New("dispatch depth exceeded")
	ErrNoDispatcher          = errors.New("no dispatcher bound to unit of work manager")
)

// Dispatcher receives the buffer of a committed unit of work.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []event.Event) error
}

// Manager runs units of work: it drains events before the write is flushed,
// dispatches them only after a successful commit and drops them otherwise.
type Manager struct {
	transactor Transactor
	pending    *PendingRegistry
	logger     *logrus.Logger
	maxDepth   int

	mu         sync.RWMutex
	dispatcher Dispatcher
}

type Option func(*Manager)

func WithMaxDepth(depth int) Option {
	return func(m *Manager) {
		if depth > 0 {
			m.maxDepth = depth
		}
	}
}

func WithPendingRegistry(r *PendingRegistry) Option {
	return func(m *Manager) {
		m.pending = r
	}
}

func NewManager(transactor Transactor, logger *logrus.Logger, opts ...Option) *Manager {
	m := &Manager{
		transactor: transactor,
		pending:    NewPendingRegistry(),
		logger:     logger,
		maxDepth:   DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetDispatcher binds the dispatcher. Consumers hold the manager for their own
// writes, so the dispatcher is attached after they are registered.
func (m *Manager) SetDispatcher(d Dispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatcher = d
}

// Pending exposes the registry of buffers awaiting an outcome.
func (m *Manager) Pending() *PendingRegistry {
	return m.pending
}

// Execute runs fn in a new transaction. It returns fn's error or the commit
// error; once the commit succeeded it returns nil even if consumers failed.
func (m *Manager) Execute(ctx context.Context, fn func(ctx context.Context, w *Work) error) error {
	w := newWork()

	tx, err := m.transactor.Begin(ctx)
	if err != nil {
		w.setState(StateAborted)
		return fmt.Errorf("begin unit of work: %w", err)
	}
	w.tx = tx
	w.setState(StateCollecting)

	defer func() {
		if r := recover(); r != nil {
			m.abort(w)
			panic(r)
		}
	}()

	if err := fn(WithTx(ctx, tx), w); err != nil {
		m.abort(w)
		return err
	}

	w.setState(StateCommitting)
	m.pending.Stash(w.drain())

	if err := tx.Commit(); err != nil {
		w.setState(StateAborted)
		m.pending.Discard(w.token)
		return fmt.Errorf("commit unit of work: %w", err)
	}
	w.setState(StateCommitted)

	buf, ok := m.pending.Take(w.token)
	if !ok || buf.Len() == 0 {
		return nil
	}
	m.dispatch(ctx, buf)
	return nil
}

// abort rolls back, drops anything drained and clears events still pending on
// tracked aggregates so a later unit of work does not dispatch them.
func (m *Manager) abort(w *Work) {
	if s := w.State(); s == StateAborted || s == StateCommitted {
		return
	}
	w.setState(StateAborted)
	if err := w.tx.Rollback(); err != nil && !errors.Is(err, ErrTxDone) {
		m.logger.WithFields(logrus.Fields{
			"component": "uow",
			"token":     w.token,
		}).WithError(err).Error("rollback failed")
	}
	w.drain()
	m.pending.Discard(w.token)
}

func (m *Manager) dispatch(ctx context.Context, buf event.Buffer) {
	log := m.logger.WithFields(logrus.Fields{
		"component": "uow",
		"token":     buf.Token,
		"events":    buf.Len(),
	})

	m.mu.RLock()
	d := m.dispatcher
	m.mu.RUnlock()
	if d == nil {
		log.WithError(ErrNoDispatcher).Error("committed events dropped")
		return
	}

	depth := Depth(ctx)
	if depth >= m.maxDepth {
		log.WithError(ErrDispatchDepthExceeded).WithField("depth", depth).Error("committed events not dispatched")
		return
	}

	// The triggering write has already committed; consumer failures are
	// surfaced through logs and the dispatcher's failure recorder only.
	if err := d.Dispatch(withDepth(ctx, depth+1), buf.Events); err != nil {
		log.WithError(err).Error("dispatch reported consumer failures")
	}
}
