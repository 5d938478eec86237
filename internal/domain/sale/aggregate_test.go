package sale

import (
	"testing"

	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items() []LineItem {
	return []LineItem{
		{ItemID: "item-1", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(25)},
		{ItemID: "item-2", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(40)},
	}
}

// ============================================
// New Tests
// ============================================

func TestNew_ComputesTotal(t *testing.T) {
	s, err := New("tenant-1", "shop-1", "cust-1", items(), decimal.NewFromInt(15), PaymentCash)

	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.True(t, decimal.NewFromInt(115).Equal(s.TotalAmount))
	assert.Equal(t, StatusOpen, s.Status)
	assert.Equal(t, s.ID, s.AggregateID())
	assert.Equal(t, AggregateType, s.AggregateType())
	assert.Empty(t, s.Pending())
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		items  []LineItem
		tax    decimal.Decimal
		method PaymentMethod
		err    error
	}{
		{"no items", nil, decimal.Zero, PaymentCash, ErrEmptySale},
		{"zero quantity", []LineItem{{ItemID: "i", Quantity: decimal.Zero, UnitPrice: decimal.NewFromInt(1)}}, decimal.Zero, PaymentCash, ErrInvalidQuantity},
		{"negative price", []LineItem{{ItemID: "i", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(-1)}}, decimal.Zero, PaymentCash, ErrInvalidPrice},
		{"tax above total", items(), decimal.NewFromInt(200), PaymentCash, ErrInvalidTax},
		{"negative tax", items(), decimal.NewFromInt(-1), PaymentCash, ErrInvalidTax},
		{"unknown method", items(), decimal.Zero, PaymentMethod("barter"), ErrInvalidPayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("tenant-1", "shop-1", "", tt.items, tt.tax, tt.method)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

// ============================================
// Transition Tests
// ============================================

func TestSale_Complete_EmitsEvent(t *testing.T) {
	s, err := New("tenant-1", "shop-1", "cust-1", items(), decimal.NewFromInt(15), PaymentCard)
	require.NoError(t, err)

	require.NoError(t, s.Complete())

	assert.Equal(t, StatusCompleted, s.Status)
	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, EventSaleCompleted, pending[0].Kind)
	assert.Equal(t, "tenant-1", pending[0].TenantID)

	p, ok := pending[0].Payload.(SaleCompleted)
	require.True(t, ok)
	assert.Equal(t, s.ID, p.SaleID)
	assert.Len(t, p.Items, 2)
	assert.True(t, p.HasCustomer())
	assert.Equal(t, PaymentCard, p.PaymentMethod)
}

func TestSale_Complete_Twice(t *testing.T) {
	s, _ := New("tenant-1", "shop-1", "", items(), decimal.Zero, PaymentCash)
	require.NoError(t, s.Complete())

	err := s.Complete()

	assert.ErrorIs(t, err, ErrSaleAlreadyCompleted)
	assert.Len(t, s.Pending(), 1)
}

func TestSale_Void(t *testing.T) {
	s, _ := New("tenant-1", "shop-1", "", items(), decimal.Zero, PaymentCash)
	require.NoError(t, s.Complete())

	require.NoError(t, s.Void("customer returned goods"))

	assert.Equal(t, StatusVoided, s.Status)
	pending := s.Drain()
	require.Len(t, pending, 2)
	assert.Equal(t, EventSaleVoided, pending[1].Kind)
	assert.ErrorIs(t, s.Complete(), ErrSaleVoided)
	assert.ErrorIs(t, s.Void("again"), ErrSaleVoided)
}

func TestPaymentMethod_IsDeferred(t *testing.T) {
	assert.True(t, PaymentBankTransfer.IsDeferred())
	assert.True(t, PaymentPayLink.IsDeferred())
	assert.False(t, PaymentCash.IsDeferred())
	assert.False(t, PaymentMobileWallet.IsDeferred())
}

// ============================================
// Codec Tests
// ============================================

func TestRegisterEvents_RoundTrip(t *testing.T) {
	c := event.NewCodec()
	require.NoError(t, RegisterEvents(c))

	s, _ := New("tenant-1", "shop-1", "", items(), decimal.NewFromInt(15), PaymentBankTransfer)
	require.NoError(t, s.Complete())
	e := s.Drain()[0]

	raw, err := c.Encode(e)
	require.NoError(t, err)
	got, err := c.Decode(raw)
	require.NoError(t, err)

	p, ok := got.Payload.(SaleCompleted)
	require.True(t, ok)
	assert.Equal(t, e.ID, got.ID)
	assert.True(t, decimal.NewFromInt(115).Equal(p.TotalAmount))
	assert.False(t, p.HasCustomer())
	assert.ErrorIs(t, RegisterEvents(c), event.ErrDuplicateKind)
}
