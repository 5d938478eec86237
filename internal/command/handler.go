package command

import (
	"context"
	"errors"

	"github.com/example/erp-event-pipeline/internal/domain/sale"
	"github.com/example/erp-event-pipeline/internal/infrastructure/store"
	"github.com/example/erp-event-pipeline/internal/uow"
)

var ErrMissingTenant = errors.New("tenant id is required")

type Handler struct {
	manager *uow.Manager
	sales   store.SaleStore
}

func NewHandler(manager *uow.Manager, sales store.SaleStore) *Handler {
	return &Handler{
		manager: manager,
		sales:   sales,
	}
}

// CompleteSale opens and completes a sale in one unit of work. The sale is
// returned once the write has committed, even if a consumer failed afterwards.
func (h *Handler) CompleteSale(ctx context.Context, cmd CompleteSale) (*sale.Sale, error) {
	if cmd.TenantID == "" {
		return nil, ErrMissingTenant
	}

	s, err := sale.New(cmd.TenantID, cmd.ShopID, cmd.CustomerID, cmd.Items, cmd.TaxAmount, cmd.PaymentMethod)
	if err != nil {
		return nil, err
	}

	err = h.manager.Execute(ctx, func(ctx context.Context, w *uow.Work) error {
		if err := s.Complete(); err != nil {
			return err
		}
		w.Track(s)
		return h.sales.SaveSale(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// VoidSale cancels a stored sale.
func (h *Handler) VoidSale(ctx context.Context, cmd VoidSale) error {
	if cmd.TenantID == "" {
		return ErrMissingTenant
	}

	return h.manager.Execute(ctx, func(ctx context.Context, w *uow.Work) error {
		s, err := h.sales.GetSale(ctx, cmd.TenantID, cmd.SaleID)
		if err != nil {
			return err
		}
		if err := s.Void(cmd.Reason); err != nil {
			return err
		}
		w.Track(s)
		return h.sales.SaveSale(ctx, s)
	})
}
