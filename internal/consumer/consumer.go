// Package consumer holds the side effects of a completed sale. Each consumer
// reads the event as input only and commits its own writes in a separate unit
// of work; every one of them is safe to run twice for the same event.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/example/erp-event-pipeline/internal/domain/sale"
	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/example/erp-event-pipeline/internal/uow"
)

// Subscription names, also used as idempotency handler names.
const (
	NameStockUpdate      = "stock_update"
	NameStockAlert       = "stock_alert"
	NameCustomerStats    = "customer_stats"
	NameCashbookPosting  = "cashbook_posting"
	NameDocumentIssuance = "document_issuance"
	NameEventRelay       = "event_relay"
)

var ErrUnexpectedPayload = errors.New("unexpected event payload")

// Executor runs a function inside a unit of work.
type Executor interface {
	Execute(ctx context.Context, fn func(ctx context.Context, w *uow.Work) error) error
}

func saleCompleted(e event.Event) (sale.SaleCompleted, error) {
	switch p := e.Payload.(type) {
	case sale.SaleCompleted:
		return p, nil
	case *sale.SaleCompleted:
		if p != nil {
			return *p, nil
		}
	}
	return sale.SaleCompleted{}, fmt.Errorf("%w: %s carries %T", ErrUnexpectedPayload, e.Kind, e.Payload)
}

// PostingLocker serializes ledger posting per tenant.
type PostingLocker interface {
	Lock(ctx context.Context, tenantID string) (release func(), err error)
}

// LocalLocker is an in-process PostingLocker for single-instance runs.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) Lock(ctx context.Context, tenantID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	m, ok := l.locks[tenantID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[tenantID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
