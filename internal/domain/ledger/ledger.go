package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// Opposite returns the other side of the entry.
func (d Direction) Opposite() Direction {
	if d == Debit {
		return Credit
	}
	return Debit
}

// Reference types used on entries.
const (
	ReferenceSale            = "Sale"
	ReferencePurchaseReceipt = "PurchaseReceipt"
	ReferenceInventoryAdjust = "InventoryAdjustment"
	ReferenceCashMovement    = "CashMovement"
	ReferenceReversal        = "Reversal"
)

var (
	ErrEmptyPosting      = errors.New("posting has no entries")
	ErrUnbalanced        = errors.New("posting is not balanced")
	ErrNonPositiveAmount = errors.New("entry amount must be positive")
	ErrMixedReference    = errors.New("entries reference different documents")
	ErrInvalidDirection  = errors.New("invalid entry direction")
	ErrAccountNotFound   = errors.New("account not found")
)

type Account struct {
	ID       string      `json:"id"`
	TenantID string      `json:"tenant_id"`
	Code     string      `json:"code"`
	Name     string      `json:"name"`
	Type     AccountType `json:"type"`
}

// Entry is one side of a posting. Entries are never updated.
type Entry struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	AccountID       string          `json:"account_id"`
	AccountCode     string          `json:"account_code"`
	Amount          decimal.Decimal `json:"amount"`
	Direction       Direction       `json:"direction"`
	Category        string          `json:"category"`
	ReferenceType   string          `json:"reference_type"`
	ReferenceID     string          `json:"reference_id"`
	TransactionDate time.Time       `json:"transaction_date"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Posting is a balanced set of entries for one business reference.
type Posting struct {
	TenantID      string  `json:"tenant_id"`
	ReferenceType string  `json:"reference_type"`
	ReferenceID   string  `json:"reference_id"`
	Entries       []Entry `json:"entries"`
}

// NewPosting starts an empty posting for a reference.
func NewPosting(tenantID, referenceType, referenceID string) *Posting {
	return &Posting{
		TenantID:      tenantID,
		ReferenceType: referenceType,
		ReferenceID:   referenceID,
	}
}

// Add appends one leg against account. Zero amounts are dropped.
func (p *Posting) Add(account Account, dir Direction, amount decimal.Decimal, category string, date time.Time) {
	if amount.IsZero() {
		return
	}
	p.Entries = append(p.Entries, Entry{
		ID:              uuid.New().String(),
		TenantID:        p.TenantID,
		AccountID:       account.ID,
		AccountCode:     account.Code,
		Amount:          amount,
		Direction:       dir,
		Category:        category,
		ReferenceType:   p.ReferenceType,
		ReferenceID:     p.ReferenceID,
		TransactionDate: date,
		CreatedAt:       time.Now().UTC(),
	})
}

// Totals sums debits and credits.
func (p *Posting) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, e := range p.Entries {
		switch e.Direction {
		case Debit:
			debit = debit.Add(e.Amount)
		case Credit:
			credit = credit.Add(e.Amount)
		}
	}
	return debit, credit
}

// Validate checks the double-entry invariants.
func (p *Posting) Validate() error {
	if len(p.Entries) == 0 {
		return ErrEmptyPosting
	}
	for _, e := range p.Entries {
		if !e.Amount.IsPositive() {
			return fmt.Errorf("%w: account %s amount %s", ErrNonPositiveAmount, e.AccountCode, e.Amount)
		}
		if e.Direction != Debit && e.Direction != Credit {
			return fmt.Errorf("%w: %q", ErrInvalidDirection, e.Direction)
		}
		if e.ReferenceType != p.ReferenceType || e.ReferenceID != p.ReferenceID || e.TenantID != p.TenantID {
			return ErrMixedReference
		}
	}
	debit, credit := p.Totals()
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", ErrUnbalanced, debit, credit)
	}
	return nil
}

// Reverse builds the posting that cancels p. The original entries stay untouched.
func (p *Posting) Reverse(date time.Time) *Posting {
	rev := NewPosting(p.TenantID, ReferenceReversal, p.ReferenceType+":"+p.ReferenceID)
	now := time.Now().UTC()
	for _, e := range p.Entries {
		rev.Entries = append(rev.Entries, Entry{
			ID:              uuid.New().String(),
			TenantID:        e.TenantID,
			AccountID:       e.AccountID,
			AccountCode:     e.AccountCode,
			Amount:          e.Amount,
			Direction:       e.Direction.Opposite(),
			Category:        e.Category,
			ReferenceType:   rev.ReferenceType,
			ReferenceID:     rev.ReferenceID,
			TransactionDate: date,
			CreatedAt:       now,
		})
	}
	return rev
}
