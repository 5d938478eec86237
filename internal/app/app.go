// Package app wires the write side, the dispatcher and the sale completion
// consumers into one process.
package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/erp-event-pipeline/internal/command"
	"github.com/example/erp-event-pipeline/internal/consumer"
	"github.com/example/erp-event-pipeline/internal/dispatch"
	"github.com/example/erp-event-pipeline/internal/domain/sale"
	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/example/erp-event-pipeline/internal/infrastructure/store"
	"github.com/example/erp-event-pipeline/internal/posting"
	"github.com/example/erp-event-pipeline/internal/uow"
	"github.com/sirupsen/logrus"
)

// Stores groups every collaborator store of the pipeline.
type Stores struct {
	Sales       store.SaleStore
	Stock       store.StockStore
	Alerts      store.AlertStore
	Customers   store.CustomerStore
	Ledger      store.LedgerStore
	Accounts    store.AccountStore
	Payments    store.PaymentStore
	Documents   store.DocumentStore
	Idempotency store.IdempotencyStore
	Failures    store.FailureStore
}

func MemoryStores() Stores {
	return Stores{
		Sales:       store.NewMemorySaleStore(),
		Stock:       store.NewMemoryStockStore(),
		Alerts:      store.NewMemoryAlertStore(),
		Customers:   store.NewMemoryCustomerStore(),
		Ledger:      store.NewMemoryLedgerStore(),
		Accounts:    store.NewMemoryAccountStore(),
		Payments:    store.NewMemoryPaymentStore(),
		Documents:   store.NewMemoryDocumentStore(),
		Idempotency: store.NewMemoryIdempotencyStore(),
		Failures:    store.NewMemoryFailureStore(),
	}
}

func PostgresStores(db *sql.DB, codec *event.Codec) Stores {
	return Stores{
		Sales:       store.NewPostgresSaleStore(db),
		Stock:       store.NewPostgresStockStore(db),
		Alerts:      store.NewPostgresAlertStore(db),
		Customers:   store.NewPostgresCustomerStore(db),
		Ledger:      store.NewPostgresLedgerStore(db),
		Accounts:    store.NewPostgresAccountStore(db),
		Payments:    store.NewPostgresPaymentStore(db),
		Documents:   store.NewPostgresDocumentStore(db),
		Idempotency: store.NewPostgresIdempotencyStore(db),
		Failures:    store.NewPostgresFailureStore(db, codec),
	}
}

// DefaultMaxAttempts is how many failed redeliveries dead-letter a failure
// when Options.MaxAttempts is not set.
const DefaultMaxAttempts = 5

type Options struct {
	Locker          consumer.PostingLocker
	Publisher       consumer.Publisher
	EngineOptions   []posting.Option
	ConsumerTimeout time.Duration
	MaxDepth        int
	MaxAttempts     int
}

type App struct {
	Codec      *event.Codec
	Manager    *uow.Manager
	Registry   *dispatch.Registry
	Dispatcher *dispatch.Dispatcher
	Commands   *command.Handler
	Stores     Stores

	maxAttempts int
	logger      *logrus.Logger
}

// NewCodec returns a codec with every payload of the pipeline registered.
func NewCodec() (*event.Codec, error) {
	codec := event.NewCodec()
	if err := sale.RegisterEvents(codec); err != nil {
		return nil, err
	}
	return codec, nil
}

func New(transactor uow.Transactor, stores Stores, codec *event.Codec, logger *logrus.Logger, opts Options) (*App, error) {
	manager := uow.NewManager(transactor, logger, uow.WithMaxDepth(opts.MaxDepth))
	registry := dispatch.NewRegistry()

	err := consumer.Register(registry, consumer.Dependencies{
		Executor:  manager,
		Stock:     stores.Stock,
		Alerts:    stores.Alerts,
		Customers: stores.Customers,
		Idem:      stores.Idempotency,
		Ledger:    stores.Ledger,
		Payments:  stores.Payments,
		Documents: stores.Documents,
		Engine:    posting.NewEngine(stores.Accounts, opts.EngineOptions...),
		Locker:    opts.Locker,
		Codec:     codec,
		Publisher: opts.Publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	dispatchOpts := []dispatch.Option{dispatch.WithFailureRecorder(stores.Failures)}
	if opts.ConsumerTimeout > 0 {
		dispatchOpts = append(dispatchOpts, dispatch.WithDefaultTimeout(opts.ConsumerTimeout))
	}
	dispatcher := dispatch.NewDispatcher(registry, logger, dispatchOpts...)
	manager.SetDispatcher(dispatcher)

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &App{
		Codec:      codec,
		Manager:    manager,
		Registry:   registry,
		Dispatcher: dispatcher,
		Commands:   command.NewHandler(manager, stores.Sales),
		Stores:     stores,

		maxAttempts: maxAttempts,
		logger:      logger,
	}, nil
}

// HandleMessage decodes a relayed envelope and dispatches it locally.
func (a *App) HandleMessage(ctx context.Context, key, value []byte) error {
	e, err := a.Codec.Decode(value)
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"component": "app",
			"key":       string(key),
		}).WithError(err).Error("dropping undecodable message")
		return err
	}
	return a.Dispatcher.Dispatch(ctx, []event.Event{e})
}

// Reconcile redelivers up to limit live failures and deletes the ones that
// now succeed. A failure that keeps failing is marked dead after the
// configured number of attempts and is not retried again. It returns how many
// were resolved.
func (a *App) Reconcile(ctx context.Context, limit int) (int, error) {
	failures, err := a.Stores.Failures.ListFailures(ctx, limit)
	if err != nil {
		return 0, err
	}

	var resolved int
	for _, f := range failures {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		if err := a.Dispatcher.Redeliver(ctx, f); err != nil {
			if err := a.retryLater(ctx, f, err); err != nil {
				return resolved, err
			}
			continue
		}
		if err := a.Stores.Failures.DeleteFailure(ctx, f.ID); err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}

func (a *App) retryLater(ctx context.Context, f dispatch.Failure, cause error) error {
	f.Attempts++
	f.Error = cause.Error()
	f.Dead = f.Attempts >= a.maxAttempts

	log := a.logger.WithFields(logrus.Fields{
		"component": "reconciler",
		"failure":   f.ID,
		"consumer":  f.Consumer,
		"event_id":  f.Event.ID,
		"attempts":  f.Attempts,
	}).WithError(cause)
	if f.Dead {
		log.Error("failure dead-lettered")
	} else {
		log.Warn("redelivery failed")
	}
	return a.Stores.Failures.UpdateFailure(ctx, f)
}

// RunReconciler calls Reconcile every interval until ctx is done.
func (a *App) RunReconciler(ctx context.Context, interval time.Duration, limit int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.Reconcile(ctx, limit)
			if err != nil && ctx.Err() == nil {
				a.logger.WithField("component", "reconciler").WithError(err).Error("reconcile failed")
			}
			if n > 0 {
				a.logger.WithFields(logrus.Fields{
					"component": "reconciler",
					"resolved":  n,
				}).Info("failures reconciled")
			}
		}
	}
}
