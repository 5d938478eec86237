package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/erp-event-pipeline/internal/dispatch"
	"github.com/example/erp-event-pipeline/internal/domain/customer"
	"github.com/example/erp-event-pipeline/internal/domain/document"
	"github.com/example/erp-event-pipeline/internal/domain/inventory"
	"github.com/example/erp-event-pipeline/internal/domain/ledger"
	"github.com/example/erp-event-pipeline/internal/domain/payment"
	"github.com/example/erp-event-pipeline/internal/domain/sale"
)

func key(parts ...string) string {
	return strings.Join(parts, "|")
}

// MemoryStockStore is an in-memory StockStore
type MemoryStockStore struct {
	mu        sync.RWMutex
	levels    map[string]inventory.Level
	movements map[string]inventory.Movement
	order     []string
}

func NewMemoryStockStore() *MemoryStockStore {
	return &MemoryStockStore{
		levels:    make(map[string]inventory.Level),
		movements: make(map[string]inventory.Movement),
	}
}

func (s *MemoryStockStore) GetLevel(ctx context.Context, tenantID, itemID, shopID string) (*inventory.Level, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.levels[key(tenantID, itemID, shopID)]
	if !ok {
		return nil, fmt.Errorf("%w: item %s shop %s", inventory.ErrLevelNotFound, itemID, shopID)
	}
	return &l, nil
}

// SaveLevel creates or replaces a level without a version check.
func (s *MemoryStockStore) SaveLevel(ctx context.Context, level *inventory.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[key(level.TenantID, level.ItemID, level.ShopID)] = *level
	return nil
}

func (s *MemoryStockStore) UpdateLevel(ctx context.Context, level *inventory.Level, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(level.TenantID, level.ItemID, level.ShopID)
	current, ok := s.levels[k]
	if !ok {
		return inventory.ErrLevelNotFound
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: have %d want %d", inventory.ErrVersionConflict, current.Version, expectedVersion)
	}
	level.Version = expectedVersion + 1
	s.levels[k] = *level
	return nil
}

func (s *MemoryStockStore) MovementExists(ctx context.Context, tenantID, referenceType, referenceID, itemID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.movements[key(tenantID, referenceType, referenceID, itemID)]
	return ok, nil
}

func (s *MemoryStockStore) AppendMovement(ctx context.Context, m inventory.Movement) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(m.TenantID, m.ReferenceType, m.ReferenceID, m.ItemID)
	if _, ok := s.movements[k]; ok {
		return inventory.ErrMovementExists
	}
	s.movements[k] = m
	s.order = append(s.order, k)
	return nil
}

// Movements returns every movement in append order.
func (s *MemoryStockStore) Movements() []inventory.Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]inventory.Movement, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.movements[k])
	}
	return out
}

// MemoryAlertStore is an in-memory AlertStore
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts []inventory.Alert
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{}
}

func (s *MemoryAlertStore) FindOpenAlert(ctx context.Context, tenantID, itemID, shopID string) (*inventory.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.alerts {
		if a.TenantID == tenantID && a.ItemID == itemID && a.ShopID == shopID && !a.Acknowledged {
			found := a
			return &found, nil
		}
	}
	return nil, inventory.ErrAlertNotFound
}

func (s *MemoryAlertStore) CreateAlert(ctx context.Context, a inventory.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.alerts {
		if existing.TenantID == a.TenantID && existing.ItemID == a.ItemID && existing.ShopID == a.ShopID && !existing.Acknowledged {
			return inventory.ErrAlertExists
		}
	}
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *MemoryAlertStore) AcknowledgeAlert(ctx context.Context, tenantID, alertID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		if s.alerts[i].TenantID == tenantID && s.alerts[i].ID == alertID {
			ackAt := at
			s.alerts[i].Acknowledged = true
			s.alerts[i].AcknowledgedAt = &ackAt
			return nil
		}
	}
	return inventory.ErrAlertNotFound
}

func (s *MemoryAlertStore) Alerts() []inventory.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]inventory.Alert(nil), s.alerts...)
}

// MemoryCustomerStore is an in-memory CustomerStore. Stats exist only for
// customers created through CreateCustomer.
type MemoryCustomerStore struct {
	mu    sync.RWMutex
	stats map[string]customer.Stats
}

func NewMemoryCustomerStore() *MemoryCustomerStore {
	return &MemoryCustomerStore{stats: make(map[string]customer.Stats)}
}

func (s *MemoryCustomerStore) CreateCustomer(ctx context.Context, tenantID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(tenantID, customerID)
	if _, ok := s.stats[k]; !ok {
		s.stats[k] = customer.Stats{TenantID: tenantID, CustomerID: customerID}
	}
	return nil
}

func (s *MemoryCustomerStore) GetStats(ctx context.Context, tenantID, customerID string) (*customer.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[key(tenantID, customerID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", customer.ErrCustomerNotFound, customerID)
	}
	return &st, nil
}

func (s *MemoryCustomerStore) SaveStats(ctx context.Context, stats *customer.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(stats.TenantID, stats.CustomerID)
	if _, ok := s.stats[k]; !ok {
		return customer.ErrCustomerNotFound
	}
	s.stats[k] = *stats
	return nil
}

// MemoryLedgerStore is an in-memory LedgerStore
type MemoryLedgerStore struct {
	mu      sync.RWMutex
	entries []ledger.Entry
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{}
}

func (s *MemoryLedgerStore) PostingExists(ctx context.Context, tenantID, referenceType, referenceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.TenantID == tenantID && e.ReferenceType == referenceType && e.ReferenceID == referenceID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryLedgerStore) AppendPosting(ctx context.Context, p *ledger.Posting) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, p.Entries...)
	return nil
}

func (s *MemoryLedgerStore) Entries(ctx context.Context, tenantID, referenceType, referenceID string) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledger.Entry
	for _, e := range s.entries {
		if e.TenantID == tenantID && e.ReferenceType == referenceType && e.ReferenceID == referenceID {
			out = append(out, e)
		}
	}
	return out, nil
}

// AllEntries returns every entry in append order.
func (s *MemoryLedgerStore) AllEntries() []ledger.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ledger.Entry(nil), s.entries...)
}

// MemoryAccountStore is an in-memory chart of accounts
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]ledger.Account
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[string]ledger.Account)}
}

func (s *MemoryAccountStore) AccountByCode(ctx context.Context, tenantID, code string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[key(tenantID, code)]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return acc, nil
}

func (s *MemoryAccountStore) SaveAccount(ctx context.Context, acc ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[key(acc.TenantID, acc.Code)] = acc
	return nil
}

// MemoryDocumentStore is an in-memory DocumentStore
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string]document.Document
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]document.Document)}
}

func (s *MemoryDocumentStore) FindDocument(ctx context.Context, tenantID, saleID string, typ document.Type) (*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[key(tenantID, saleID, string(typ))]
	if !ok {
		return nil, document.ErrDocumentNotFound
	}
	return &d, nil
}

func (s *MemoryDocumentStore) CreateDocument(ctx context.Context, d document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(d.TenantID, d.SaleID, string(d.Type))
	if _, ok := s.docs[k]; ok {
		return document.ErrDocumentExists
	}
	s.docs[k] = d
	return nil
}

func (s *MemoryDocumentStore) Documents() []document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]document.Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d)
	}
	return out
}

// MemoryPaymentStore is an in-memory PaymentStore. It keeps one payment per
// reference: the memory transactor cannot roll back a payment whose posting
// failed, so a redelivery returns the payment already recorded.
type MemoryPaymentStore struct {
	mu       sync.RWMutex
	payments []payment.Payment
	byRef    map[string]int
}

func NewMemoryPaymentStore() *MemoryPaymentStore {
	return &MemoryPaymentStore{byRef: make(map[string]int)}
}

func (s *MemoryPaymentStore) RecordPayment(ctx context.Context, p payment.Payment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(p.TenantID, p.ReferenceType, p.ReferenceID)
	if i, ok := s.byRef[k]; ok {
		return s.payments[i].ID, nil
	}
	s.byRef[k] = len(s.payments)
	s.payments = append(s.payments, p)
	return p.ID, nil
}

func (s *MemoryPaymentStore) Payments() []payment.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]payment.Payment(nil), s.payments...)
}

// MemorySaleStore is an in-memory SaleStore
type MemorySaleStore struct {
	mu    sync.RWMutex
	sales map[string]*sale.Sale
}

func NewMemorySaleStore() *MemorySaleStore {
	return &MemorySaleStore{sales: make(map[string]*sale.Sale)}
}

// cloneSale copies the persisted fields only; pending events stay on the original.
func cloneSale(sl *sale.Sale) *sale.Sale {
	c := &sale.Sale{
		ID:            sl.ID,
		TenantID:      sl.TenantID,
		ShopID:        sl.ShopID,
		CustomerID:    sl.CustomerID,
		Items:         append([]sale.LineItem(nil), sl.Items...),
		TotalAmount:   sl.TotalAmount,
		TaxAmount:     sl.TaxAmount,
		PaymentMethod: sl.PaymentMethod,
		Status:        sl.Status,
		SaleDate:      sl.SaleDate,
		UpdatedAt:     sl.UpdatedAt,
	}
	c.Init(c.ID, sale.AggregateType, c.TenantID)
	return c
}

func (s *MemorySaleStore) SaveSale(ctx context.Context, sl *sale.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales[key(sl.TenantID, sl.ID)] = cloneSale(sl)
	return nil
}

func (s *MemorySaleStore) GetSale(ctx context.Context, tenantID, saleID string) (*sale.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.sales[key(tenantID, saleID)]
	if !ok {
		return nil, sale.ErrSaleNotFound
	}
	return cloneSale(sl), nil
}

// MemoryFailureStore is an in-memory FailureStore
type MemoryFailureStore struct {
	mu       sync.RWMutex
	failures map[string]dispatch.Failure
}

func NewMemoryFailureStore() *MemoryFailureStore {
	return &MemoryFailureStore{failures: make(map[string]dispatch.Failure)}
}

func (s *MemoryFailureStore) RecordFailure(ctx context.Context, f dispatch.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[f.ID] = f
	return nil
}

// ListFailures returns the oldest live failures first.
func (s *MemoryFailureStore) ListFailures(ctx context.Context, limit int) ([]dispatch.Failure, error) {
	return s.list(false, limit), nil
}

func (s *MemoryFailureStore) ListDeadFailures(ctx context.Context, limit int) ([]dispatch.Failure, error) {
	return s.list(true, limit), nil
}

func (s *MemoryFailureStore) list(dead bool, limit int) []dispatch.Failure {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]dispatch.Failure, 0, len(s.failures))
	for _, f := range s.failures {
		if f.Dead == dead {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryFailureStore) UpdateFailure(ctx context.Context, f dispatch.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.failures[f.ID]
	if !ok {
		return fmt.Errorf("failure %s not found", f.ID)
	}
	current.Attempts = f.Attempts
	current.Error = f.Error
	current.Dead = f.Dead
	s.failures[f.ID] = current
	return nil
}

func (s *MemoryFailureStore) DeleteFailure(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, id)
	return nil
}

type idempotencyKey struct {
	status    string
	lastError string
	updatedAt time.Time
}

// MemoryIdempotencyStore is an in-memory IdempotencyStore
type MemoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]*idempotencyKey
	now  func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		keys: make(map[string]*idempotencyKey),
		now:  time.Now,
	}
}

func (s *MemoryIdempotencyStore) Begin(ctx context.Context, tenantID, handler, k string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := key(tenantID, handler, k)
	existing, ok := s.keys[id]
	if !ok {
		s.keys[id] = &idempotencyKey{status: IdempotencyStarted, updatedAt: s.now()}
		return false, nil
	}

	switch existing.status {
	case IdempotencySucceeded:
		return true, nil
	case IdempotencyStarted:
		if s.now().Sub(existing.updatedAt) < IdempotencyStaleAfter {
			return false, ErrIdempotencyInProgress
		}
	}
	existing.status = IdempotencyStarted
	existing.lastError = ""
	existing.updatedAt = s.now()
	return false, nil
}

func (s *MemoryIdempotencyStore) MarkSucceeded(ctx context.Context, tenantID, handler, k string) error {
	return s.mark(key(tenantID, handler, k), IdempotencySucceeded, "")
}

func (s *MemoryIdempotencyStore) MarkFailed(ctx context.Context, tenantID, handler, k string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.mark(key(tenantID, handler, k), IdempotencyFailed, msg)
}

func (s *MemoryIdempotencyStore) mark(id, status, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.keys[id]
	if !ok {
		return fmt.Errorf("idempotency key %s not started", id)
	}
	existing.status = status
	existing.lastError = lastError
	existing.updatedAt = s.now()
	return nil
}

// Status returns the state of a key, or "" when unknown.
func (s *MemoryIdempotencyStore) Status(tenantID, handler, k string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.keys[key(tenantID, handler, k)]; ok {
		return existing.status
	}
	return ""
}
