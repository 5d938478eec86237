package document

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeReceipt Type = "receipt"
	TypeInvoice Type = "invoice"
)

var (
	ErrDocumentExists   = errors.New("document already issued")
	ErrDocumentNotFound = errors.New("document not found")
)

// Document is a receipt or invoice issued for a sale.
// At most one document of each type exists per sale.
type Document struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	SaleID     string          `json:"sale_id"`
	Type       Type            `json:"type"`
	CustomerID string          `json:"customer_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	IssuedAt   time.Time       `json:"issued_at"`
}

func New(tenantID, saleID string, typ Type, customerID string, amount, tax decimal.Decimal) Document {
	return Document{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		SaleID:     saleID,
		Type:       typ,
		CustomerID: customerID,
		Amount:     amount,
		TaxAmount:  tax,
		IssuedAt:   time.Now().UTC(),
	}
}
