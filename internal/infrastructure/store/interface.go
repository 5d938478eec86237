package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/erp-event-pipeline/internal/dispatch"
	"github.com/example/erp-event-pipeline/internal/domain/customer"
	"github.com/example/erp-event-pipeline/internal/domain/document"
	"github.com/example/erp-event-pipeline/internal/domain/inventory"
	"github.com/example/erp-event-pipeline/internal/domain/ledger"
	"github.com/example/erp-event-pipeline/internal/domain/payment"
	"github.com/example/erp-event-pipeline/internal/domain/sale"
)

// Every store joins the transaction carried by ctx (see uow.WithTx) when
// there is one, and runs standalone otherwise.

// StockStore persists stock levels and the movement audit trail.
type StockStore interface {
	GetLevel(ctx context.Context, tenantID, itemID, shopID string) (*inventory.Level, error)
	SaveLevel(ctx context.Context, level *inventory.Level) error
	// UpdateLevel writes level if the stored version still equals expectedVersion
	// and bumps level.Version, otherwise it returns inventory.ErrVersionConflict.
	UpdateLevel(ctx context.Context, level *inventory.Level, expectedVersion int) error
	MovementExists(ctx context.Context, tenantID, referenceType, referenceID, itemID string) (bool, error)
	AppendMovement(ctx context.Context, m inventory.Movement) error
}

// AlertStore keeps at most one unacknowledged alert per (item, shop).
type AlertStore interface {
	FindOpenAlert(ctx context.Context, tenantID, itemID, shopID string) (*inventory.Alert, error)
	CreateAlert(ctx context.Context, a inventory.Alert) error
	AcknowledgeAlert(ctx context.Context, tenantID, alertID string, at time.Time) error
}

type CustomerStore interface {
	// CreateCustomer registers a customer with zero counters. Existing
	// customers are left untouched.
	CreateCustomer(ctx context.Context, tenantID, customerID string) error
	GetStats(ctx context.Context, tenantID, customerID string) (*customer.Stats, error)
	SaveStats(ctx context.Context, stats *customer.Stats) error
}

// LedgerStore is append-only.
type LedgerStore interface {
	PostingExists(ctx context.Context, tenantID, referenceType, referenceID string) (bool, error)
	AppendPosting(ctx context.Context, p *ledger.Posting) error
	Entries(ctx context.Context, tenantID, referenceType, referenceID string) ([]ledger.Entry, error)
}

// AccountStore is the chart of accounts.
type AccountStore interface {
	AccountByCode(ctx context.Context, tenantID, code string) (ledger.Account, error)
	SaveAccount(ctx context.Context, acc ledger.Account) error
}

type DocumentStore interface {
	FindDocument(ctx context.Context, tenantID, saleID string, typ document.Type) (*document.Document, error)
	CreateDocument(ctx context.Context, d document.Document) error
}

type PaymentStore interface {
	RecordPayment(ctx context.Context, p payment.Payment) (string, error)
}

type SaleStore interface {
	SaveSale(ctx context.Context, s *sale.Sale) error
	GetSale(ctx context.Context, tenantID, saleID string) (*sale.Sale, error)
}

// FailureStore keeps consumer failures for reconciliation.
type FailureStore interface {
	dispatch.FailureRecorder
	// ListFailures returns live failures, oldest first. Dead ones are left out.
	ListFailures(ctx context.Context, limit int) ([]dispatch.Failure, error)
	ListDeadFailures(ctx context.Context, limit int) ([]dispatch.Failure, error)
	// UpdateFailure stores the attempts, error and dead flag of f.
	UpdateFailure(ctx context.Context, f dispatch.Failure) error
	DeleteFailure(ctx context.Context, id string) error
}

// Idempotency key states.
const (
	IdempotencyStarted   = "STARTED"
	IdempotencySucceeded = "SUCCEEDED"
	IdempotencyFailed    = "FAILED"
)

// IdempotencyStaleAfter is how long a STARTED key blocks other workers.
const IdempotencyStaleAfter = 5 * time.Minute

var ErrIdempotencyInProgress = errors.New("idempotency key in progress")

// IdempotencyStore records which (handler, key) pairs were already applied.
type IdempotencyStore interface {
	// Begin claims the key. skip is true when the key already succeeded.
	Begin(ctx context.Context, tenantID, handler, key string) (skip bool, err error)
	MarkSucceeded(ctx context.Context, tenantID, handler, key string) error
	MarkFailed(ctx context.Context, tenantID, handler, key string, cause error) error
}
