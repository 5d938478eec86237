package sale

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/erp-event-pipeline/internal/domain/aggregate"
	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const AggregateType = "Sale"

type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusVoided    Status = "voided"
)

var (
	ErrSaleNotFound         = errors.New("sale not found")
	ErrEmptySale            = errors.New("sale must have at least one item")
	ErrInvalidQuantity      = errors.New("item quantity must be positive")
	ErrInvalidPrice         = errors.New("unit price must not be negative")
	ErrInvalidTax           = errors.New("tax must be between zero and the total")
	ErrInvalidPayment       = errors.New("unknown payment method")
	ErrInvalidStatus        = errors.New("invalid sale status transition")
	ErrSaleAlreadyCompleted = errors.New("sale is already completed")
	ErrSaleVoided           = errors.New("sale is voided")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusOpen:      {StatusCompleted, StatusVoided},
	StatusCompleted: {StatusVoided},
	StatusVoided:    {}, // terminal state
}

type Sale struct {
	aggregate.Root `json:"-"`

	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	ShopID        string          `json:"shop_id"`
	CustomerID    string          `json:"customer_id,omitempty"`
	Items         []LineItem      `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Status        Status          `json:"status"`
	SaleDate      time.Time       `json:"sale_date"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// New opens a sale. The id is assigned here so events drained before the
// write is flushed already carry it.
func New(tenantID, shopID, customerID string, items []LineItem, tax decimal.Decimal, method PaymentMethod) (*Sale, error) {
	if len(items) == 0 {
		return nil, ErrEmptySale
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPayment, method)
	}

	total := decimal.Zero
	for _, item := range items {
		if !item.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: item %s", ErrInvalidQuantity, item.ItemID)
		}
		if item.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: item %s", ErrInvalidPrice, item.ItemID)
		}
		total = total.Add(item.Quantity.Mul(item.UnitPrice))
	}
	// Line prices are tax inclusive.
	if tax.IsNegative() || tax.GreaterThan(total) {
		return nil, ErrInvalidTax
	}

	now := time.Now().UTC()
	s := &Sale{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		ShopID:        shopID,
		CustomerID:    customerID,
		Items:         items,
		TotalAmount:   total,
		TaxAmount:     tax,
		PaymentMethod: method,
		Status:        StatusOpen,
		SaleDate:      now,
		UpdatedAt:     now,
	}
	s.Init(s.ID, AggregateType, tenantID)
	return s, nil
}

// CanTransitionTo checks if the sale can transition to the target status
func (s *Sale) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s.Status] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s *Sale) transitionError(target Status) error {
	switch {
	case s.Status == StatusVoided:
		return ErrSaleVoided
	case s.Status == StatusCompleted && target == StatusCompleted:
		return ErrSaleAlreadyCompleted
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, s.Status, target)
	}
}

// Complete marks the sale completed and records SaleCompleted.
func (s *Sale) Complete() error {
	if !s.CanTransitionTo(StatusCompleted) {
		return s.transitionError(StatusCompleted)
	}
	s.Status = StatusCompleted
	s.UpdatedAt = time.Now().UTC()

	s.Emit(SaleCompleted{
		SaleID:        s.ID,
		TenantID:      s.TenantID,
		ShopID:        s.ShopID,
		CustomerID:    s.CustomerID,
		Items:         append([]LineItem(nil), s.Items...),
		TotalAmount:   s.TotalAmount,
		TaxAmount:     s.TaxAmount,
		PaymentMethod: s.PaymentMethod,
		SaleDate:      s.SaleDate,
	})
	return nil
}

// Void cancels the sale and records SaleVoided.
func (s *Sale) Void(reason string) error {
	if !s.CanTransitionTo(StatusVoided) {
		return s.transitionError(StatusVoided)
	}
	now := time.Now().UTC()
	s.Status = StatusVoided
	s.UpdatedAt = now

	s.Emit(SaleVoided{
		SaleID:   s.ID,
		TenantID: s.TenantID,
		Reason:   reason,
		VoidedAt: now,
	})
	return nil
}

// RegisterEvents adds the sale payloads to a wire codec.
func RegisterEvents(c *event.Codec) error {
	if err := c.Register(EventSaleCompleted, event.DecodeAs[SaleCompleted]()); err != nil {
		return err
	}
	return c.Register(EventSaleVoided, event.DecodeAs[SaleVoided]())
}
