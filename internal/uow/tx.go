package uow

import (
	"context"
	"errors"
	"sync"
)

// Tx is the underlying write transaction of a unit of work.
type Tx interface {
	Commit() error
	Rollback() error
}

// Transactor opens transactions.
type Transactor interface {
	Begin(ctx context.Context) (Tx, error)
}

type txKey struct{}

type depthKey struct{}

// WithTx returns a context carrying tx so stores can join it.
func WithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction of the enclosing unit of work, if any.
func TxFromContext(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(Tx)
	return tx, ok
}

// Depth is the number of dispatch rounds enclosing ctx.
func Depth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

func withDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

var ErrTxDone = errors.New("transaction already finished")

// MemoryTransactor hands out no-op transactions for in-memory stores.
// Writes made through memory stores are not rolled back.
type MemoryTransactor struct {
	mu         sync.Mutex
	failCommit error
	Begun      int
	Committed  int
	RolledBack int
}

func NewMemoryTransactor() *MemoryTransactor {
	return &MemoryTransactor{}
}

// FailNextCommit makes the next Commit return err.
func (t *MemoryTransactor) FailNextCommit(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failCommit = err
}

func (t *MemoryTransactor) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Begun++
	return &memoryTx{parent: t}, nil
}

// Stats returns begin/commit/rollback counters.
func (t *MemoryTransactor) Stats() (begun, committed, rolledBack int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Begun, t.Committed, t.RolledBack
}

type memoryTx struct {
	parent *MemoryTransactor
	done   bool
}

func (tx *memoryTx) Commit() error {
	tx.parent.mu.Lock()
	defer tx.parent.mu.Unlock()

	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	if err := tx.parent.failCommit; err != nil {
		tx.parent.failCommit = nil
		tx.parent.RolledBack++
		return err
	}
	tx.parent.Committed++
	return nil
}

func (tx *memoryTx) Rollback() error {
	tx.parent.mu.Lock()
	defer tx.parent.mu.Unlock()

	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	tx.parent.RolledBack++
	return nil
}
