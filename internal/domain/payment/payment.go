package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment records money received against a reference.
type Payment struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	Method        string          `json:"method"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAt        time.Time       `json:"paid_at"`
}

func New(tenantID, referenceType, referenceID, method string, amount decimal.Decimal, paidAt time.Time) Payment {
	return Payment{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		ReferenceType: referenceType,
		ReferenceID:   referenceID,
		Method:        method,
		Amount:        amount,
		PaidAt:        paidAt,
	}
}
