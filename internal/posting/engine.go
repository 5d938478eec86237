// Package posting turns business operations into balanced ledger postings.
//
// Every rule resolves its accounts through the tenant's chart of accounts
// before building any entry. A missing account fails the whole posting; no
// partial entry set is ever returned.
package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/erp-event-pipeline/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound = ledger.ErrAccountNotFound
	ErrInvalidAmount   = errors.New("invalid posting amount")
)

// Entry categories.
const (
	CategorySales      = "sales"
	CategoryPurchase   = "purchase"
	CategoryAdjustment = "inventory_adjustment"
	CategoryCash       = "cash"
)

// UnresolvedAccountError names the code the chart of accounts could not resolve.
type UnresolvedAccountError struct {
	TenantID string
	Role     string
	Code     string
	Err      error
}

func (e *UnresolvedAccountError) Error() string {
	return fmt.Sprintf("resolve %s account %q for tenant %s: %v", e.Role, e.Code, e.TenantID, e.Err)
}

func (e *UnresolvedAccountError) Unwrap() error {
	return e.Err
}

// ChartOfAccounts looks accounts up by their well-known code.
type ChartOfAccounts interface {
	AccountByCode(ctx context.Context, tenantID, code string) (ledger.Account, error)
}

// AccountCodes are the well-known codes the rules post against.
type AccountCodes struct {
	Cash              string `yaml:"cash" json:"cash"`
	Inventory         string `yaml:"inventory" json:"inventory"`
	PurchaseTax       string `yaml:"purchase_tax" json:"purchase_tax"`
	AccountsPayable   string `yaml:"accounts_payable" json:"accounts_payable"`
	SalesTax          string `yaml:"sales_tax" json:"sales_tax"`
	SalesRevenue      string `yaml:"sales_revenue" json:"sales_revenue"`
	AdjustmentExpense string `yaml:"adjustment_expense" json:"adjustment_expense"`
}

func DefaultAccountCodes() AccountCodes {
	return AccountCodes{
		Cash:              "1000",
		Inventory:         "1200",
		PurchaseTax:       "1300",
		AccountsPayable:   "2000",
		SalesTax:          "2100",
		SalesRevenue:      "4000",
		AdjustmentExpense: "5100",
	}
}

// merge returns c with every non-empty field of o applied.
func (c AccountCodes) merge(o AccountCodes) AccountCodes {
	pick := func(base, override string) string {
		if override != "" {
			return override
		}
		return base
	}
	return AccountCodes{
		Cash:              pick(c.Cash, o.Cash),
		Inventory:         pick(c.Inventory, o.Inventory),
		PurchaseTax:       pick(c.PurchaseTax, o.PurchaseTax),
		AccountsPayable:   pick(c.AccountsPayable, o.AccountsPayable),
		SalesTax:          pick(c.SalesTax, o.SalesTax),
		SalesRevenue:      pick(c.SalesRevenue, o.SalesRevenue),
		AdjustmentExpense: pick(c.AdjustmentExpense, o.AdjustmentExpense),
	}
}

type Engine struct {
	chart     ChartOfAccounts
	codes     AccountCodes
	overrides map[string]AccountCodes
}

type Option func(*Engine)

// WithCodes replaces the default codes for every tenant.
func WithCodes(codes AccountCodes) Option {
	return func(e *Engine) {
		e.codes = e.codes.merge(codes)
	}
}

// WithTenantCodes overrides codes for a single tenant. Empty fields keep the default.
func WithTenantCodes(tenantID string, codes AccountCodes) Option {
	return func(e *Engine) {
		e.overrides[tenantID] = codes
	}
}

func NewEngine(chart ChartOfAccounts, opts ...Option) *Engine {
	e := &Engine{
		chart:     chart,
		codes:     DefaultAccountCodes(),
		overrides: make(map[string]AccountCodes),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CodesFor returns the effective codes for tenantID.
func (e *Engine) CodesFor(tenantID string) AccountCodes {
	if o, ok := e.overrides[tenantID]; ok {
		return e.codes.merge(o)
	}
	return e.codes
}

func (e *Engine) resolve(ctx context.Context, tenantID string, r role) (ledger.Account, error) {
	if r.code == "" {
		return ledger.Account{}, &UnresolvedAccountError{TenantID: tenantID, Role: r.name, Code: r.code, Err: ErrAccountNotFound}
	}
	acc, err := e.chart.AccountByCode(ctx, tenantID, r.code)
	if err != nil {
		return ledger.Account{}, &UnresolvedAccountError{TenantID: tenantID, Role: r.name, Code: r.code, Err: err}
	}
	return acc, nil
}

type role struct {
	name string
	code string
}

// accounts resolves every role, in order, before a rule builds entries.
func (e *Engine) accounts(ctx context.Context, tenantID string, roles ...role) (map[string]ledger.Account, error) {
	out := make(map[string]ledger.Account, len(roles))
	for _, r := range roles {
		acc, err := e.resolve(ctx, tenantID, r)
		if err != nil {
			return nil, err
		}
		out[r.name] = acc
	}
	return out, nil
}

func finish(p *ledger.Posting) (*ledger.Posting, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("build %s posting %s: %w", p.ReferenceType, p.ReferenceID, err)
	}
	return p, nil
}

// PostSale books a tax-inclusive sale paid immediately:
// debit cash total, credit revenue total-tax, credit sales tax.
func (e *Engine) PostSale(ctx context.Context, tenantID, saleID string, date time.Time, total, tax decimal.Decimal) (*ledger.Posting, error) {
	if !total.IsPositive() || tax.IsNegative() || tax.GreaterThan(total) {
		return nil, fmt.Errorf("%w: sale %s total %s tax %s", ErrInvalidAmount, saleID, total, tax)
	}

	codes := e.CodesFor(tenantID)
	roles := []role{{"cash", codes.Cash}, {"revenue", codes.SalesRevenue}}
	if tax.IsPositive() {
		roles = append(roles, role{"sales_tax", codes.SalesTax})
	}
	acc, err := e.accounts(ctx, tenantID, roles...)
	if err != nil {
		return nil, err
	}

	p := ledger.NewPosting(tenantID, ledger.ReferenceSale, saleID)
	p.Add(acc["cash"], ledger.Debit, total, CategorySales, date)
	p.Add(acc["revenue"], ledger.Credit, total.Sub(tax), CategorySales, date)
	if tax.IsPositive() {
		p.Add(acc["sales_tax"], ledger.Credit, tax, CategorySales, date)
	}
	return finish(p)
}

// PostPurchaseReceipt books received stock on credit:
// debit inventory net, debit purchase tax, credit accounts payable total.
func (e *Engine) PostPurchaseReceipt(ctx context.Context, tenantID, receiptID string, date time.Time, total, tax decimal.Decimal) (*ledger.Posting, error) {
	if !total.IsPositive() || tax.IsNegative() || tax.GreaterThan(total) {
		return nil, fmt.Errorf("%w: receipt %s total %s tax %s", ErrInvalidAmount, receiptID, total, tax)
	}

	codes := e.CodesFor(tenantID)
	roles := []role{{"inventory", codes.Inventory}, {"accounts_payable", codes.AccountsPayable}}
	if tax.IsPositive() {
		roles = append(roles, role{"purchase_tax", codes.PurchaseTax})
	}
	acc, err := e.accounts(ctx, tenantID, roles...)
	if err != nil {
		return nil, err
	}

	p := ledger.NewPosting(tenantID, ledger.ReferencePurchaseReceipt, receiptID)
	p.Add(acc["inventory"], ledger.Debit, total.Sub(tax), CategoryPurchase, date)
	if tax.IsPositive() {
		p.Add(acc["purchase_tax"], ledger.Debit, tax, CategoryPurchase, date)
	}
	p.Add(acc["accounts_payable"], ledger.Credit, total, CategoryPurchase, date)
	return finish(p)
}

// PostInventoryAdjustment books a stock value change. A negative value is a
// write-down (debit expense, credit inventory), a positive one the reverse.
func (e *Engine) PostInventoryAdjustment(ctx context.Context, tenantID, adjustmentID string, date time.Time, value decimal.Decimal) (*ledger.Posting, error) {
	if value.IsZero() {
		return nil, fmt.Errorf("%w: adjustment %s has zero value", ErrInvalidAmount, adjustmentID)
	}

	codes := e.CodesFor(tenantID)
	acc, err := e.accounts(ctx, tenantID,
		role{"inventory", codes.Inventory},
		role{"adjustment_expense", codes.AdjustmentExpense},
	)
	if err != nil {
		return nil, err
	}

	p := ledger.NewPosting(tenantID, ledger.ReferenceInventoryAdjust, adjustmentID)
	amount := value.Abs()
	if value.IsNegative() {
		p.Add(acc["adjustment_expense"], ledger.Debit, amount, CategoryAdjustment, date)
		p.Add(acc["inventory"], ledger.Credit, amount, CategoryAdjustment, date)
	} else {
		p.Add(acc["inventory"], ledger.Debit, amount, CategoryAdjustment, date)
		p.Add(acc["adjustment_expense"], ledger.Credit, amount, CategoryAdjustment, date)
	}
	return finish(p)
}

// PostCashMovement books money in (positive) or out (negative) of the cash
// account against counterCode.
func (e *Engine) PostCashMovement(ctx context.Context, tenantID, referenceID string, date time.Time, amount decimal.Decimal, counterCode string) (*ledger.Posting, error) {
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: cash movement %s has zero amount", ErrInvalidAmount, referenceID)
	}

	codes := e.CodesFor(tenantID)
	acc, err := e.accounts(ctx, tenantID,
		role{"cash", codes.Cash},
		role{"counter", counterCode},
	)
	if err != nil {
		return nil, err
	}

	p := ledger.NewPosting(tenantID, ledger.ReferenceCashMovement, referenceID)
	dir := ledger.Debit
	if amount.IsNegative() {
		dir = ledger.Credit
	}
	p.Add(acc["cash"], dir, amount.Abs(), CategoryCash, date)
	p.Add(acc["counter"], dir.Opposite(), amount.Abs(), CategoryCash, date)
	return finish(p)
}
