package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/example/erp-event-pipeline/internal/infrastructure/store"
	"github.com/example/erp-event-pipeline/internal/uow"
	"github.com/sirupsen/logrus"
)

// CustomerStats applies a sale to its customer's purchase counters. The sale
// id is claimed in the idempotency store first so a redelivery never counts
// the same sale twice.
type CustomerStats struct {
	exec      Executor
	customers store.CustomerStore
	idem      store.IdempotencyStore
	logger    *logrus.Logger
}

func NewCustomerStats(exec Executor, customers store.CustomerStore, idem store.IdempotencyStore, logger *logrus.Logger) *CustomerStats {
	return &CustomerStats{exec: exec, customers: customers, idem: idem, logger: logger}
}

func (c *CustomerStats) Handle(ctx context.Context, e event.Event) error {
	p, err := saleCompleted(e)
	if err != nil {
		return err
	}
	if !p.HasCustomer() {
		return nil
	}

	log := c.logger.WithFields(logrus.Fields{
		"component":   NameCustomerStats,
		"tenant_id":   p.TenantID,
		"sale_id":     p.SaleID,
		"customer_id": p.CustomerID,
	})

	var skipped bool
	err = c.exec.Execute(ctx, func(ctx context.Context, w *uow.Work) error {
		skip, err := c.idem.Begin(ctx, p.TenantID, NameCustomerStats, p.SaleID)
		if err != nil {
			return err
		}
		if skip {
			skipped = true
			return nil
		}

		stats, err := c.customers.GetStats(ctx, p.TenantID, p.CustomerID)
		if err != nil {
			return err
		}
		stats.RecordPurchase(p.TotalAmount, p.SaleDate)
		if err := c.customers.SaveStats(ctx, stats); err != nil {
			return err
		}
		return c.idem.MarkSucceeded(ctx, p.TenantID, NameCustomerStats, p.SaleID)
	})
	if err != nil && !errors.Is(err, store.ErrIdempotencyInProgress) {
		// Outside the rolled back transaction so the failure is kept.
		if markErr := c.idem.MarkFailed(context.WithoutCancel(ctx), p.TenantID, NameCustomerStats, p.SaleID, err); markErr != nil {
			log.WithError(markErr).Debug("could not mark idempotency key failed")
		}
	}
	if err != nil {
		return fmt.Errorf("update customer stats for sale %s: %w", p.SaleID, err)
	}

	if skipped {
		log.Debug("customer stats already applied")
		return nil
	}
	log.Info("customer stats updated")
	return nil
}
