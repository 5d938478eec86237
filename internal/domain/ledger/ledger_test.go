package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	cash    = Account{ID: "acc-cash", Code: "1000", Type: AccountTypeAsset}
	revenue = Account{ID: "acc-rev", Code: "4000", Type: AccountTypeRevenue}
	taxLiab = Account{ID: "acc-tax", Code: "2100", Type: AccountTypeLiability}
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func balancedSale() *Posting {
	p := NewPosting("tenant-1", ReferenceSale, "sale-1")
	now := time.Now()
	p.Add(cash, Debit, d("115"), "sales", now)
	p.Add(revenue, Credit, d("100"), "sales", now)
	p.Add(taxLiab, Credit, d("15"), "tax", now)
	return p
}

// ============================================
// Validate Tests
// ============================================

func TestPosting_Validate_Balanced(t *testing.T) {
	p := balancedSale()

	require.NoError(t, p.Validate())

	debit, credit := p.Totals()
	assert.True(t, debit.Equal(d("115")))
	assert.True(t, credit.Equal(d("115")))
}

func TestPosting_Validate_Unbalanced(t *testing.T) {
	p := NewPosting("tenant-1", ReferenceSale, "sale-1")
	now := time.Now()
	p.Add(cash, Debit, d("100"), "sales", now)
	p.Add(revenue, Credit, d("100"), "sales", now)
	p.Add(taxLiab, Credit, d("15"), "tax", now)

	assert.ErrorIs(t, p.Validate(), ErrUnbalanced)
}

func TestPosting_Validate_Empty(t *testing.T) {
	p := NewPosting("tenant-1", ReferenceSale, "sale-1")

	assert.ErrorIs(t, p.Validate(), ErrEmptyPosting)
}

func TestPosting_Validate_NegativeAmount(t *testing.T) {
	p := balancedSale()
	p.Entries[0].Amount = d("-115")

	assert.ErrorIs(t, p.Validate(), ErrNonPositiveAmount)
}

func TestPosting_Validate_MixedReference(t *testing.T) {
	p := balancedSale()
	p.Entries[1].ReferenceID = "sale-2"

	assert.ErrorIs(t, p.Validate(), ErrMixedReference)
}

func TestPosting_Add_DropsZero(t *testing.T) {
	p := NewPosting("tenant-1", ReferenceSale, "sale-1")
	p.Add(taxLiab, Credit, decimal.Zero, "tax", time.Now())

	assert.Empty(t, p.Entries)
}

// ============================================
// Reverse Tests
// ============================================

func TestPosting_Reverse_FlipsDirections(t *testing.T) {
	p := balancedSale()

	rev := p.Reverse(time.Now())

	require.NoError(t, rev.Validate())
	require.Len(t, rev.Entries, len(p.Entries))
	for i := range p.Entries {
		assert.Equal(t, p.Entries[i].Direction.Opposite(), rev.Entries[i].Direction)
		assert.True(t, p.Entries[i].Amount.Equal(rev.Entries[i].Amount))
		assert.NotEqual(t, p.Entries[i].ID, rev.Entries[i].ID)
	}
	assert.Equal(t, ReferenceReversal, rev.ReferenceType)
	assert.Equal(t, "Sale:sale-1", rev.ReferenceID)
	// original untouched
	assert.Equal(t, Debit, p.Entries[0].Direction)
}
