package command

import (
	"github.com/example/erp-event-pipeline/internal/domain/sale"
	"github.com/shopspring/decimal"
)

// Sale Commands
type CompleteSale struct {
	TenantID      string             `json:"tenant_id"`
	ShopID        string             `json:"shop_id"`
	CustomerID    string             `json:"customer_id,omitempty"`
	Items         []sale.LineItem    `json:"items"`
	TaxAmount     decimal.Decimal    `json:"tax_amount"`
	PaymentMethod sale.PaymentMethod `json:"payment_method"`
}

type VoidSale struct {
	TenantID string `json:"tenant_id"`
	SaleID   string `json:"sale_id"`
	Reason   string `json:"reason"`
}
