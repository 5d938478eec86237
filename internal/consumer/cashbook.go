package consumer

import (
	"context"
	"fmt"

	"github.com/example/erp-event-pipeline/internal/domain/ledger"
	"github.com/example/erp-event-pipeline/internal/domain/payment"
	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/example/erp-event-pipeline/internal/infrastructure/store"
	"github.com/example/erp-event-pipeline/internal/posting"
	"github.com/example/erp-event-pipeline/internal/uow"
	"github.com/sirupsen/logrus"
)

// CashbookPosting records the payment of an immediately paid sale and posts
// its ledger entries. Deferred methods are posted by the invoice payment flow;
// a zero total moves no money and posts nothing.
type CashbookPosting struct {
	exec     Executor
	engine   *posting.Engine
	ledger   store.LedgerStore
	payments store.PaymentStore
	locker   PostingLocker
	logger   *logrus.Logger
}

func NewCashbookPosting(exec Executor, engine *posting.Engine, ledgerStore store.LedgerStore, payments store.PaymentStore, locker PostingLocker, logger *logrus.Logger) *CashbookPosting {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &CashbookPosting{
		exec:     exec,
		engine:   engine,
		ledger:   ledgerStore,
		payments: payments,
		locker:   locker,
		logger:   logger,
	}
}

func (c *CashbookPosting) Handle(ctx context.Context, e event.Event) error {
	p, err := saleCompleted(e)
	if err != nil {
		return err
	}

	log := c.logger.WithFields(logrus.Fields{
		"component":      NameCashbookPosting,
		"tenant_id":      p.TenantID,
		"sale_id":        p.SaleID,
		"payment_method": string(p.PaymentMethod),
	})

	if p.PaymentMethod.IsDeferred() {
		log.Debug("deferred payment, posting skipped")
		return nil
	}
	if p.TotalAmount.IsZero() {
		log.Debug("zero total, posting skipped")
		return nil
	}

	posted, err := c.ledger.PostingExists(ctx, p.TenantID, ledger.ReferenceSale, p.SaleID)
	if err != nil {
		return err
	}
	if posted {
		log.Debug("sale already posted")
		return nil
	}

	release, err := c.locker.Lock(ctx, p.TenantID)
	if err != nil {
		return err
	}
	defer release()

	var created bool
	err = c.exec.Execute(ctx, func(ctx context.Context, w *uow.Work) error {
		// Checked again under the tenant lock.
		posted, err := c.ledger.PostingExists(ctx, p.TenantID, ledger.ReferenceSale, p.SaleID)
		if err != nil || posted {
			return err
		}

		entries, err := c.engine.PostSale(ctx, p.TenantID, p.SaleID, p.SaleDate, p.TotalAmount, p.TaxAmount)
		if err != nil {
			return err
		}
		pay := payment.New(p.TenantID, ledger.ReferenceSale, p.SaleID, string(p.PaymentMethod), p.TotalAmount, p.SaleDate)
		if _, err := c.payments.RecordPayment(ctx, pay); err != nil {
			return fmt.Errorf("record payment: %w", err)
		}
		if err := c.ledger.AppendPosting(ctx, entries); err != nil {
			return fmt.Errorf("append posting: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("post sale %s: %w", p.SaleID, err)
	}

	if created {
		log.WithField("amount", p.TotalAmount.String()).Info("sale posted to cashbook")
	}
	return nil
}
