package inventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLevel(qty, min int64) Level {
	return Level{
		TenantID:     "tenant-1",
		ItemID:       "item-a",
		ShopID:       "shop-x",
		Quantity:     decimal.NewFromInt(qty),
		MinimumStock: decimal.NewFromInt(min),
	}
}

// ============================================
// Level Tests
// ============================================

func TestLevel_IsLow(t *testing.T) {
	tests := []struct {
		name     string
		qty, min int64
		expected bool
	}{
		{"above minimum", 10, 5, false},
		{"at minimum", 5, 5, true},
		{"below minimum", 2, 5, true},
		{"negative stock", -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, newLevel(tt.qty, tt.min).IsLow())
		})
	}
}

func TestLevel_Decrement_Snapshot(t *testing.T) {
	l := newLevel(10, 2)
	at := time.Now()

	m, err := l.Decrement(decimal.NewFromInt(3), MovementReferenceSale, "sale-1", at)

	require.NoError(t, err)
	assert.True(t, l.Quantity.Equal(decimal.NewFromInt(7)))
	assert.True(t, m.QuantityBefore.Equal(decimal.NewFromInt(10)))
	assert.True(t, m.QuantityDelta.Equal(decimal.NewFromInt(-3)))
	assert.True(t, m.QuantityAfter.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, "sale-1", m.ReferenceID)
	assert.Equal(t, "item-a", m.ItemID)
	assert.NoError(t, m.Validate())
}

func TestLevel_Decrement_AllowsNegative(t *testing.T) {
	l := newLevel(1, 0)

	m, err := l.Decrement(decimal.NewFromInt(3), MovementReferenceSale, "sale-1", time.Now())

	require.NoError(t, err)
	assert.True(t, m.QuantityAfter.Equal(decimal.NewFromInt(-2)))
}

func TestLevel_Decrement_InvalidQuantity(t *testing.T) {
	l := newLevel(10, 2)

	_, err := l.Decrement(decimal.Zero, MovementReferenceSale, "sale-1", time.Now())

	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.True(t, l.Quantity.Equal(decimal.NewFromInt(10)))
}

func TestLevel_Adjust_Positive(t *testing.T) {
	l := newLevel(10, 2)

	m, err := l.Adjust(decimal.NewFromInt(5), MovementReferenceAdjustment, "adj-1", time.Now())

	require.NoError(t, err)
	assert.True(t, m.QuantityAfter.Equal(decimal.NewFromInt(15)))
	assert.NoError(t, m.Validate())
}

// ============================================
// Movement / Alert Tests
// ============================================

func TestMovement_Validate_Broken(t *testing.T) {
	m := Movement{
		QuantityBefore: decimal.NewFromInt(10),
		QuantityDelta:  decimal.NewFromInt(-3),
		QuantityAfter:  decimal.NewFromInt(8),
	}

	assert.ErrorIs(t, m.Validate(), ErrBrokenMovement)
}

func TestNewAlert_SnapshotsLevel(t *testing.T) {
	a := NewAlert(newLevel(1, 5))

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "item-a", a.ItemID)
	assert.Equal(t, "shop-x", a.ShopID)
	assert.True(t, a.CurrentStock.Equal(decimal.NewFromInt(1)))
	assert.True(t, a.MinimumStock.Equal(decimal.NewFromInt(5)))
	assert.False(t, a.Acknowledged)
}
