package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MovementReferenceSale       = "Sale"
	MovementReferenceAdjustment = "Adjustment"
)

var (
	ErrLevelNotFound   = errors.New("stock level not found")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrVersionConflict = errors.New("stock level was modified concurrently")
	ErrMovementExists  = errors.New("stock movement already recorded")
	ErrAlertExists     = errors.New("unacknowledged alert already exists")
	ErrAlertNotFound   = errors.New("alert not found")
	ErrBrokenMovement  = errors.New("movement quantity-after does not match before + delta")
)

// Level is the on-hand quantity of one item at one shop.
// Version is bumped on every write and used for optimistic concurrency.
type Level struct {
	TenantID     string          `json:"tenant_id"`
	ItemID       string          `json:"item_id"`
	ShopID       string          `json:"shop_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	MinimumStock decimal.Decimal `json:"minimum_stock"`
	Version      int             `json:"version"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsLow reports whether the level is at or below its minimum.
func (l Level) IsLow() bool {
	return l.Quantity.LessThanOrEqual(l.MinimumStock)
}

// Decrement lowers the quantity and returns the movement snapshot.
// Stock may go negative; a POS sale is never refused here.
func (l *Level) Decrement(qty decimal.Decimal, referenceType, referenceID string, at time.Time) (Movement, error) {
	if !qty.IsPositive() {
		return Movement{}, ErrInvalidQuantity
	}
	return l.apply(qty.Neg(), referenceType, referenceID, at), nil
}

// Adjust changes the quantity by delta, positive or negative.
func (l *Level) Adjust(delta decimal.Decimal, referenceType, referenceID string, at time.Time) (Movement, error) {
	if delta.IsZero() {
		return Movement{}, ErrInvalidQuantity
	}
	return l.apply(delta, referenceType, referenceID, at), nil
}

func (l *Level) apply(delta decimal.Decimal, referenceType, referenceID string, at time.Time) Movement {
	before := l.Quantity
	l.Quantity = before.Add(delta)
	l.UpdatedAt = time.Now().UTC()

	return Movement{
		ID:             uuid.New().String(),
		TenantID:       l.TenantID,
		ItemID:         l.ItemID,
		ShopID:         l.ShopID,
		QuantityBefore: before,
		QuantityDelta:  delta,
		QuantityAfter:  l.Quantity,
		ReferenceType:  referenceType,
		ReferenceID:    referenceID,
		MovementDate:   at,
		CreatedAt:      l.UpdatedAt,
	}
}

// Movement is an append-only audit record of a quantity change.
type Movement struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	ItemID         string          `json:"item_id"`
	ShopID         string          `json:"shop_id"`
	QuantityBefore decimal.Decimal `json:"quantity_before"`
	QuantityDelta  decimal.Decimal `json:"quantity_delta"`
	QuantityAfter  decimal.Decimal `json:"quantity_after"`
	ReferenceType  string          `json:"reference_type"`
	ReferenceID    string          `json:"reference_id"`
	MovementDate   time.Time       `json:"movement_date"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Validate checks quantity-after == quantity-before + quantity-delta.
func (m Movement) Validate() error {
	if !m.QuantityBefore.Add(m.QuantityDelta).Equal(m.QuantityAfter) {
		return fmt.Errorf("%w: %s + %s != %s", ErrBrokenMovement, m.QuantityBefore, m.QuantityDelta, m.QuantityAfter)
	}
	return nil
}

// Alert is a standing low-stock notice for one (item, shop) pair.
type Alert struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	ItemID         string          `json:"item_id"`
	ShopID         string          `json:"shop_id"`
	CurrentStock   decimal.Decimal `json:"current_stock"`
	MinimumStock   decimal.Decimal `json:"minimum_stock"`
	Acknowledged   bool            `json:"acknowledged"`
	CreatedAt      time.Time       `json:"created_at"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
}

// NewAlert snapshots a low level.
func NewAlert(l Level) Alert {
	return Alert{
		ID:           uuid.New().String(),
		TenantID:     l.TenantID,
		ItemID:       l.ItemID,
		ShopID:       l.ShopID,
		CurrentStock: l.Quantity,
		MinimumStock: l.MinimumStock,
		CreatedAt:    time.Now().UTC(),
	}
}
