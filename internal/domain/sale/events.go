package sale

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventSaleCompleted = "SaleCompleted"
	EventSaleVoided    = "SaleVoided"
)

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentMobileWallet PaymentMethod = "mobile_wallet"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentPayLink      PaymentMethod = "pay_link"
)

// IsDeferred reports whether the money arrives later through the invoice-payment flow.
func (m PaymentMethod) IsDeferred() bool {
	return m == PaymentBankTransfer || m == PaymentPayLink
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobileWallet, PaymentBankTransfer, PaymentPayLink:
		return true
	}
	return false
}

type LineItem struct {
	ItemID    string          `json:"item_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SaleCompleted is the wire contract consumed by every completion handler.
type SaleCompleted struct {
	SaleID        string          `json:"sale_id"`
	TenantID      string          `json:"tenant_id"`
	ShopID        string          `json:"shop_id"`
	CustomerID    string          `json:"customer_id,omitempty"`
	Items         []LineItem      `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	SaleDate      time.Time       `json:"sale_date"`
}

func (SaleCompleted) EventKind() string { return EventSaleCompleted }

// HasCustomer reports whether the sale is linked to a customer.
func (e SaleCompleted) HasCustomer() bool {
	return e.CustomerID != ""
}

type SaleVoided struct {
	SaleID   string    `json:"sale_id"`
	TenantID string    `json:"tenant_id"`
	Reason   string    `json:"reason"`
	VoidedAt time.Time `json:"voided_at"`
}

func (SaleVoided) EventKind() string { return EventSaleVoided }
