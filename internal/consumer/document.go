package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/erp-event-pipeline/internal/domain/document"
	"github.com/example/erp-event-pipeline/internal/domain/sale"
	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/example/erp-event-pipeline/internal/infrastructure/store"
	"github.com/example/erp-event-pipeline/internal/uow"
	"github.com/sirupsen/logrus"
)

// DocumentIssuance issues a receipt for an immediately paid sale, or an
// invoice for a deferred one with a customer.
type DocumentIssuance struct {
	exec   Executor
	docs   store.DocumentStore
	logger *logrus.Logger
}

func NewDocumentIssuance(exec Executor, docs store.DocumentStore, logger *logrus.Logger) *DocumentIssuance {
	return &DocumentIssuance{exec: exec, docs: docs, logger: logger}
}

// documentType returns the document a sale needs, if any.
func documentType(p sale.SaleCompleted) (document.Type, bool) {
	if !p.PaymentMethod.IsDeferred() {
		return document.TypeReceipt, true
	}
	if p.HasCustomer() {
		return document.TypeInvoice, true
	}
	return "", false
}

func (c *DocumentIssuance) Handle(ctx context.Context, e event.Event) error {
	p, err := saleCompleted(e)
	if err != nil {
		return err
	}
	typ, ok := documentType(p)
	if !ok {
		return nil
	}

	log := c.logger.WithFields(logrus.Fields{
		"component": NameDocumentIssuance,
		"tenant_id": p.TenantID,
		"sale_id":   p.SaleID,
		"type":      string(typ),
	})

	existing, err := c.docs.FindDocument(ctx, p.TenantID, p.SaleID, typ)
	if err == nil {
		log.WithField("document_id", existing.ID).Debug("document already issued")
		return nil
	}
	if !errors.Is(err, document.ErrDocumentNotFound) {
		return err
	}

	doc := document.New(p.TenantID, p.SaleID, typ, p.CustomerID, p.TotalAmount, p.TaxAmount)
	err = c.exec.Execute(ctx, func(ctx context.Context, w *uow.Work) error {
		return c.docs.CreateDocument(ctx, doc)
	})
	if errors.Is(err, document.ErrDocumentExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("issue %s for sale %s: %w", typ, p.SaleID, err)
	}

	log.WithField("document_id", doc.ID).Info("document issued")
	return nil
}
