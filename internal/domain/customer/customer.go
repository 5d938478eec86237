package customer

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrCustomerNotFound = errors.New("customer not found")

// Stats are the purchase counters kept on a customer.
type Stats struct {
	TenantID            string          `json:"tenant_id"`
	CustomerID          string          `json:"customer_id"`
	TotalPurchases      int             `json:"total_purchases"`
	TotalPurchaseAmount decimal.Decimal `json:"total_purchase_amount"`
	FirstPurchaseDate   *time.Time      `json:"first_purchase_date,omitempty"`
	LastPurchaseDate    *time.Time      `json:"last_purchase_date,omitempty"`
}

// RecordPurchase applies one sale to the counters.
func (s *Stats) RecordPurchase(amount decimal.Decimal, at time.Time) {
	s.TotalPurchases++
	s.TotalPurchaseAmount = s.TotalPurchaseAmount.Add(amount)
	if s.FirstPurchaseDate == nil {
		first := at
		s.FirstPurchaseDate = &first
	}
	if s.LastPurchaseDate == nil || at.After(*s.LastPurchaseDate) {
		last := at
		s.LastPurchaseDate = &last
	}
}
