package command

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/erp-event-pipeline/internal/domain/sale"
	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/example/erp-event-pipeline/internal/infrastructure/store"
	"github.com/example/erp-event-pipeline/internal/uow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, events []event.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, events...)
	return d.err
}

// failingSales fails every save.
type failingSales struct {
	*store.MemorySaleStore
}

func (failingSales) SaveSale(ctx context.Context, s *sale.Sale) error {
	return errors.New("disk full")
}

func newTestHandler(sales store.SaleStore) (*Handler, *recordingDispatcher, *uow.MemoryTransactor) {
	logger, _ := test.NewNullLogger()
	transactor := uow.NewMemoryTransactor()
	manager := uow.NewManager(transactor, logger)
	d := &recordingDispatcher{}
	manager.SetDispatcher(d)
	return NewHandler(manager, sales), d, transactor
}

func completeSaleCmd() CompleteSale {
	return CompleteSale{
		TenantID:   "tenant-1",
		ShopID:     "shop-1",
		CustomerID: "cust-1",
		Items: []sale.LineItem{
			{ItemID: "item-a", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(25)},
			{ItemID: "item-b", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(40)},
		},
		TaxAmount:     decimal.NewFromInt(15),
		PaymentMethod: sale.PaymentCash,
	}
}

// ============================================
// Complete Sale Tests
// ============================================

func TestHandler_CompleteSale_Success(t *testing.T) {
	sales := store.NewMemorySaleStore()
	handler, d, transactor := newTestHandler(sales)
	ctx := context.Background()

	s, err := handler.CompleteSale(ctx, completeSaleCmd())

	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, sale.StatusCompleted, s.Status)
	assert.True(t, s.TotalAmount.Equal(decimal.NewFromInt(115)))

	stored, err := sales.GetSale(ctx, "tenant-1", s.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.StatusCompleted, stored.Status)

	require.Len(t, d.events, 1)
	assert.Equal(t, sale.EventSaleCompleted, d.events[0].Kind)
	assert.Equal(t, s.ID, d.events[0].AggregateID)
	payload, ok := d.events[0].Payload.(sale.SaleCompleted)
	require.True(t, ok)
	assert.True(t, payload.TaxAmount.Equal(decimal.NewFromInt(15)))

	_, committed, _ := transactor.Stats()
	assert.Equal(t, 1, committed)
}

func TestHandler_CompleteSale_ConsumerFailureStillSucceeds(t *testing.T) {
	handler, d, _ := newTestHandler(store.NewMemorySaleStore())
	d.err = errors.New("stock consumer failed")

	s, err := handler.CompleteSale(context.Background(), completeSaleCmd())

	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Len(t, d.events, 1)
}

func TestHandler_CompleteSale_SaveFailureDispatchesNothing(t *testing.T) {
	handler, d, transactor := newTestHandler(failingSales{store.NewMemorySaleStore()})

	s, err := handler.CompleteSale(context.Background(), completeSaleCmd())

	assert.EqualError(t, err, "disk full")
	assert.Nil(t, s)
	assert.Empty(t, d.events)
	_, committed, rolledBack := transactor.Stats()
	assert.Equal(t, 0, committed)
	assert.Equal(t, 1, rolledBack)
}

func TestHandler_CompleteSale_CommitFailure(t *testing.T) {
	handler, d, transactor := newTestHandler(store.NewMemorySaleStore())
	transactor.FailNextCommit(errors.New("connection reset"))

	s, err := handler.CompleteSale(context.Background(), completeSaleCmd())

	assert.Error(t, err)
	assert.Nil(t, s)
	assert.Empty(t, d.events)
}

func TestHandler_CompleteSale_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CompleteSale)
		err    error
	}{
		{"missing tenant", func(c *CompleteSale) { c.TenantID = "" }, ErrMissingTenant},
		{"no items", func(c *CompleteSale) { c.Items = nil }, sale.ErrEmptySale},
		{"unknown payment", func(c *CompleteSale) { c.PaymentMethod = "barter" }, sale.ErrInvalidPayment},
		{"tax above total", func(c *CompleteSale) { c.TaxAmount = decimal.NewFromInt(500) }, sale.ErrInvalidTax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, d, transactor := newTestHandler(store.NewMemorySaleStore())
			cmd := completeSaleCmd()
			tt.mutate(&cmd)

			s, err := handler.CompleteSale(context.Background(), cmd)

			assert.ErrorIs(t, err, tt.err)
			assert.Nil(t, s)
			assert.Empty(t, d.events)
			begun, _, _ := transactor.Stats()
			assert.Zero(t, begun)
		})
	}
}

// ============================================
// Void Sale Tests
// ============================================

func TestHandler_VoidSale_Success(t *testing.T) {
	sales := store.NewMemorySaleStore()
	handler, d, _ := newTestHandler(sales)
	ctx := context.Background()

	s, err := handler.CompleteSale(ctx, completeSaleCmd())
	require.NoError(t, err)

	err = handler.VoidSale(ctx, VoidSale{TenantID: "tenant-1", SaleID: s.ID, Reason: "customer returned goods"})
	require.NoError(t, err)

	stored, err := sales.GetSale(ctx, "tenant-1", s.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.StatusVoided, stored.Status)

	require.Len(t, d.events, 2)
	assert.Equal(t, sale.EventSaleVoided, d.events[1].Kind)
	assert.Equal(t, s.ID, d.events[1].AggregateID)
	assert.Equal(t, "tenant-1", d.events[1].TenantID)
}

func TestHandler_VoidSale_NotFound(t *testing.T) {
	handler, d, _ := newTestHandler(store.NewMemorySaleStore())

	err := handler.VoidSale(context.Background(), VoidSale{TenantID: "tenant-1", SaleID: "missing"})

	assert.ErrorIs(t, err, sale.ErrSaleNotFound)
	assert.Empty(t, d.events)
}

func TestHandler_VoidSale_AlreadyVoided(t *testing.T) {
	handler, d, _ := newTestHandler(store.NewMemorySaleStore())
	ctx := context.Background()

	s, err := handler.CompleteSale(ctx, completeSaleCmd())
	require.NoError(t, err)
	require.NoError(t, handler.VoidSale(ctx, VoidSale{TenantID: "tenant-1", SaleID: s.ID}))

	err = handler.VoidSale(ctx, VoidSale{TenantID: "tenant-1", SaleID: s.ID})

	assert.ErrorIs(t, err, sale.ErrSaleVoided)
	assert.Len(t, d.events, 2)
}
