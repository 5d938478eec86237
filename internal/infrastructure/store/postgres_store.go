package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/erp-event-pipeline/internal/dispatch"
	"github.com/example/erp-event-pipeline/internal/domain/customer"
	"github.com/example/erp-event-pipeline/internal/domain/document"
	"github.com/example/erp-event-pipeline/internal/domain/inventory"
	"github.com/example/erp-event-pipeline/internal/domain/ledger"
	"github.com/example/erp-event-pipeline/internal/domain/payment"
	"github.com/example/erp-event-pipeline/internal/domain/sale"
	"github.com/example/erp-event-pipeline/internal/event"
)

// Inserts that may race use ON CONFLICT DO NOTHING so a lost race does not
// poison the enclosing transaction.

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// PostgresStockStore stores stock levels and movements in PostgreSQL
type PostgresStockStore struct {
	db *sql.DB
}

func NewPostgresStockStore(db *sql.DB) *PostgresStockStore {
	return &PostgresStockStore{db: db}
}

func (s *PostgresStockStore) GetLevel(ctx context.Context, tenantID, itemID, shopID string) (*inventory.Level, error) {
	var l inventory.Level
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT tenant_id, item_id, shop_id, quantity, minimum_stock, version, updated_at
		 FROM stock_levels
		 WHERE tenant_id = $1 AND item_id = $2 AND shop_id = $3`,
		tenantID, itemID, shopID,
	).Scan(&l.TenantID, &l.ItemID, &l.ShopID, &l.Quantity, &l.MinimumStock, &l.Version, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %s shop %s", inventory.ErrLevelNotFound, itemID, shopID)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStockStore) SaveLevel(ctx context.Context, level *inventory.Level) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO stock_levels (tenant_id, item_id, shop_id, quantity, minimum_stock, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (tenant_id, item_id, shop_id) DO UPDATE
		 SET quantity = EXCLUDED.quantity, minimum_stock = EXCLUDED.minimum_stock,
		     version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`,
		level.TenantID, level.ItemID, level.ShopID, level.Quantity, level.MinimumStock, level.Version, level.UpdatedAt,
	)
	return err
}

func (s *PostgresStockStore) UpdateLevel(ctx context.Context, level *inventory.Level, expectedVersion int) error {
	res, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE stock_levels
		 SET quantity = $1, version = version + 1, updated_at = $2
		 WHERE tenant_id = $3 AND item_id = $4 AND shop_id = $5 AND version = $6`,
		level.Quantity, level.UpdatedAt, level.TenantID, level.ItemID, level.ShopID, expectedVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: item %s shop %s version %d", inventory.ErrVersionConflict, level.ItemID, level.ShopID, expectedVersion)
	}
	level.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStockStore) MovementExists(ctx context.Context, tenantID, referenceType, referenceID, itemID string) (bool, error) {
	var exists bool
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM stock_movements
			WHERE tenant_id = $1 AND reference_type = $2 AND reference_id = $3 AND item_id = $4
		 )`,
		tenantID, referenceType, referenceID, itemID,
	).Scan(&exists)
	return exists, err
}

func (s *PostgresStockStore) AppendMovement(ctx context.Context, m inventory.Movement) error {
	if err := m.Validate(); err != nil {
		return err
	}
	res, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO stock_movements (id, tenant_id, item_id, shop_id, quantity_before, quantity_delta,
		     quantity_after, reference_type, reference_id, movement_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (tenant_id, reference_type, reference_id, item_id) DO NOTHING`,
		m.ID, m.TenantID, m.ItemID, m.ShopID, m.QuantityBefore, m.QuantityDelta,
		m.QuantityAfter, m.ReferenceType, m.ReferenceID, m.MovementDate, m.CreatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return inventory.ErrMovementExists
	}
	return nil
}

// PostgresAlertStore stores low-stock alerts in PostgreSQL
type PostgresAlertStore struct {
	db *sql.DB
}

func NewPostgresAlertStore(db *sql.DB) *PostgresAlertStore {
	return &PostgresAlertStore{db: db}
}

func (s *PostgresAlertStore) FindOpenAlert(ctx context.Context, tenantID, itemID, shopID string) (*inventory.Alert, error) {
	var (
		a     inventory.Alert
		ackAt sql.NullTime
	)
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, tenant_id, item_id, shop_id, current_stock, minimum_stock, acknowledged, created_at, acknowledged_at
		 FROM stock_alerts
		 WHERE tenant_id = $1 AND item_id = $2 AND shop_id = $3 AND NOT acknowledged`,
		tenantID, itemID, shopID,
	).Scan(&a.ID, &a.TenantID, &a.ItemID, &a.ShopID, &a.CurrentStock, &a.MinimumStock, &a.Acknowledged, &a.CreatedAt, &ackAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inventory.ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	a.AcknowledgedAt = timePtr(ackAt)
	return &a, nil
}

func (s *PostgresAlertStore) CreateAlert(ctx context.Context, a inventory.Alert) error {
	res, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO stock_alerts (id, tenant_id, item_id, shop_id, current_stock, minimum_stock, acknowledged, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		 ON CONFLICT (tenant_id, item_id, shop_id) WHERE NOT acknowledged DO NOTHING`,
		a.ID, a.TenantID, a.ItemID, a.ShopID, a.CurrentStock, a.MinimumStock, a.CreatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return inventory.ErrAlertExists
	}
	return nil
}

func (s *PostgresAlertStore) AcknowledgeAlert(ctx context.Context, tenantID, alertID string, at time.Time) error {
	res, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE stock_alerts SET acknowledged = TRUE, acknowledged_at = $1
		 WHERE tenant_id = $2 AND id = $3`,
		at, tenantID, alertID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return inventory.ErrAlertNotFound
	}
	return nil
}

// PostgresCustomerStore stores customer purchase statistics in PostgreSQL
type PostgresCustomerStore struct {
	db *sql.DB
}

func NewPostgresCustomerStore(db *sql.DB) *PostgresCustomerStore {
	return &PostgresCustomerStore{db: db}
}

func (s *PostgresCustomerStore) CreateCustomer(ctx context.Context, tenantID, customerID string) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO customers (tenant_id, id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		tenantID, customerID,
	)
	return err
}

func (s *PostgresCustomerStore) GetStats(ctx context.Context, tenantID, customerID string) (*customer.Stats, error) {
	var (
		st          customer.Stats
		first, last sql.NullTime
	)
	// FOR UPDATE serializes concurrent sales of the same customer.
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT tenant_id, id, total_purchases, total_purchase_amount, first_purchase_date, last_purchase_date
		 FROM customers
		 WHERE tenant_id = $1 AND id = $2
		 FOR UPDATE`,
		tenantID, customerID,
	).Scan(&st.TenantID, &st.CustomerID, &st.TotalPurchases, &st.TotalPurchaseAmount, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", customer.ErrCustomerNotFound, customerID)
	}
	if err != nil {
		return nil, err
	}
	st.FirstPurchaseDate = timePtr(first)
	st.LastPurchaseDate = timePtr(last)
	return &st, nil
}

func (s *PostgresCustomerStore) SaveStats(ctx context.Context, st *customer.Stats) error {
	res, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE customers
		 SET total_purchases = $1, total_purchase_amount = $2, first_purchase_date = $3, last_purchase_date = $4
		 WHERE tenant_id = $5 AND id = $6`,
		st.TotalPurchases, st.TotalPurchaseAmount, nullTime(st.FirstPurchaseDate), nullTime(st.LastPurchaseDate),
		st.TenantID, st.CustomerID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return customer.ErrCustomerNotFound
	}
	return nil
}

// PostgresLedgerStore appends ledger entries in PostgreSQL
type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

func (s *PostgresLedgerStore) PostingExists(ctx context.Context, tenantID, referenceType, referenceID string) (bool, error) {
	var exists bool
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM ledger_entries
			WHERE tenant_id = $1 AND reference_type = $2 AND reference_id = $3
		 )`,
		tenantID, referenceType, referenceID,
	).Scan(&exists)
	return exists, err
}

// AppendPosting inserts every entry of p. Call it inside a unit of work so
// the entries land together or not at all.
func (s *PostgresLedgerStore) AppendPosting(ctx context.Context, p *ledger.Posting) error {
	if err := p.Validate(); err != nil {
		return err
	}
	db := conn(ctx, s.db)
	for _, e := range p.Entries {
		_, err := db.ExecContext(ctx,
			`INSERT INTO ledger_entries (id, tenant_id, account_id, account_code, amount, direction, category,
			     reference_type, reference_id, transaction_date, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			e.ID, e.TenantID, e.AccountID, e.AccountCode, e.Amount, string(e.Direction), e.Category,
			e.ReferenceType, e.ReferenceID, e.TransactionDate, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert ledger entry %s: %w", e.ID, err)
		}
	}
	return nil
}

func (s *PostgresLedgerStore) Entries(ctx context.Context, tenantID, referenceType, referenceID string) ([]ledger.Entry, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx,
		`SELECT id, tenant_id, account_id, account_code, amount, direction, category,
		     reference_type, reference_id, transaction_date, created_at
		 FROM ledger_entries
		 WHERE tenant_id = $1 AND reference_type = $2 AND reference_id = $3
		 ORDER BY created_at ASC`,
		tenantID, referenceType, referenceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var (
			e   ledger.Entry
			dir string
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.AccountID, &e.AccountCode, &e.Amount, &dir, &e.Category,
			&e.ReferenceType, &e.ReferenceID, &e.TransactionDate, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Direction = ledger.Direction(dir)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PostgresAccountStore is the chart of accounts in PostgreSQL
type PostgresAccountStore struct {
	db *sql.DB
}

func NewPostgresAccountStore(db *sql.DB) *PostgresAccountStore {
	return &PostgresAccountStore{db: db}
}

func (s *PostgresAccountStore) AccountByCode(ctx context.Context, tenantID, code string) (ledger.Account, error) {
	var (
		acc ledger.Account
		typ string
	)
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, tenant_id, code, name, type FROM accounts WHERE tenant_id = $1 AND code = $2`,
		tenantID, code,
	).Scan(&acc.ID, &acc.TenantID, &acc.Code, &acc.Name, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, err
	}
	acc.Type = ledger.AccountType(typ)
	return acc, nil
}

func (s *PostgresAccountStore) SaveAccount(ctx context.Context, acc ledger.Account) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO accounts (id, tenant_id, code, name, type)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tenant_id, code) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type`,
		acc.ID, acc.TenantID, acc.Code, acc.Name, string(acc.Type),
	)
	return err
}

// PostgresDocumentStore stores receipts and invoices in PostgreSQL
type PostgresDocumentStore struct {
	db *sql.DB
}

func NewPostgresDocumentStore(db *sql.DB) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db}
}

func (s *PostgresDocumentStore) FindDocument(ctx context.Context, tenantID, saleID string, typ document.Type) (*document.Document, error) {
	var (
		d          document.Document
		docType    string
		customerID sql.NullString
	)
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, tenant_id, sale_id, type, customer_id, amount, tax_amount, issued_at
		 FROM documents
		 WHERE tenant_id = $1 AND sale_id = $2 AND type = $3`,
		tenantID, saleID, string(typ),
	).Scan(&d.ID, &d.TenantID, &d.SaleID, &docType, &customerID, &d.Amount, &d.TaxAmount, &d.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, document.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Type = document.Type(docType)
	d.CustomerID = customerID.String
	return &d, nil
}

func (s *PostgresDocumentStore) CreateDocument(ctx context.Context, d document.Document) error {
	res, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO documents (id, tenant_id, sale_id, type, customer_id, amount, tax_amount, issued_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (tenant_id, sale_id, type) DO NOTHING`,
		d.ID, d.TenantID, d.SaleID, string(d.Type), nullString(d.CustomerID), d.Amount, d.TaxAmount, d.IssuedAt,
	)
	if isDuplicateKeyErr(err) {
		return document.ErrDocumentExists
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return document.ErrDocumentExists
	}
	return nil
}

// PostgresPaymentStore records payments in PostgreSQL
type PostgresPaymentStore struct {
	db *sql.DB
}

func NewPostgresPaymentStore(db *sql.DB) *PostgresPaymentStore {
	return &PostgresPaymentStore{db: db}
}

func (s *PostgresPaymentStore) RecordPayment(ctx context.Context, p payment.Payment) (string, error) {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO payments (id, tenant_id, reference_type, reference_id, method, amount, paid_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.TenantID, p.ReferenceType, p.ReferenceID, p.Method, p.Amount, p.PaidAt,
	)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// PostgresSaleStore stores sales in PostgreSQL
type PostgresSaleStore struct {
	db *sql.DB
}

func NewPostgresSaleStore(db *sql.DB) *PostgresSaleStore {
	return &PostgresSaleStore{db: db}
}

func (s *PostgresSaleStore) SaveSale(ctx context.Context, sl *sale.Sale) error {
	items, err := json.Marshal(sl.Items)
	if err != nil {
		return err
	}
	_, err = conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO sales (id, tenant_id, shop_id, customer_id, items, total_amount, tax_amount,
		     payment_method, status, sale_date, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		sl.ID, sl.TenantID, sl.ShopID, nullString(sl.CustomerID), items, sl.TotalAmount, sl.TaxAmount,
		string(sl.PaymentMethod), string(sl.Status), sl.SaleDate, sl.UpdatedAt,
	)
	return err
}

func (s *PostgresSaleStore) GetSale(ctx context.Context, tenantID, saleID string) (*sale.Sale, error) {
	var (
		sl             sale.Sale
		customerID     sql.NullString
		items          []byte
		method, status string
	)
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, tenant_id, shop_id, customer_id, items, total_amount, tax_amount,
		     payment_method, status, sale_date, updated_at
		 FROM sales
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, saleID,
	).Scan(&sl.ID, &sl.TenantID, &sl.ShopID, &customerID, &items, &sl.TotalAmount, &sl.TaxAmount,
		&method, &status, &sl.SaleDate, &sl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sale.ErrSaleNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &sl.Items); err != nil {
		return nil, fmt.Errorf("decode sale items: %w", err)
	}
	sl.CustomerID = customerID.String
	sl.PaymentMethod = sale.PaymentMethod(method)
	sl.Status = sale.Status(status)
	sl.Init(sl.ID, sale.AggregateType, sl.TenantID)
	return &sl, nil
}

// PostgresIdempotencyStore keeps idempotency keys in PostgreSQL
type PostgresIdempotencyStore struct {
	db *sql.DB
}

func NewPostgresIdempotencyStore(db *sql.DB) *PostgresIdempotencyStore {
	return &PostgresIdempotencyStore{db: db}
}

func (s *PostgresIdempotencyStore) Begin(ctx context.Context, tenantID, handler, key string) (bool, error) {
	db := conn(ctx, s.db)
	res, err := db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (tenant_id, handler, message_id, status, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (tenant_id, handler, message_id) DO NOTHING`,
		tenantID, handler, key, IdempotencyStarted,
	)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return false, nil
	}

	var (
		status    string
		updatedAt time.Time
	)
	if err := db.QueryRowContext(ctx,
		`SELECT status, updated_at FROM idempotency_keys
		 WHERE tenant_id = $1 AND handler = $2 AND message_id = $3
		 FOR UPDATE`,
		tenantID, handler, key,
	).Scan(&status, &updatedAt); err != nil {
		return false, err
	}

	switch status {
	case IdempotencySucceeded:
		return true, nil
	case IdempotencyStarted:
		if time.Since(updatedAt) < IdempotencyStaleAfter {
			return false, ErrIdempotencyInProgress
		}
	}
	return false, s.mark(ctx, tenantID, handler, key, IdempotencyStarted, nil)
}

func (s *PostgresIdempotencyStore) MarkSucceeded(ctx context.Context, tenantID, handler, key string) error {
	return s.mark(ctx, tenantID, handler, key, IdempotencySucceeded, nil)
}

func (s *PostgresIdempotencyStore) MarkFailed(ctx context.Context, tenantID, handler, key string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.mark(ctx, tenantID, handler, key, IdempotencyFailed, &msg)
}

func (s *PostgresIdempotencyStore) mark(ctx context.Context, tenantID, handler, key, status string, lastError *string) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE idempotency_keys SET status = $1, last_error = $2, updated_at = NOW()
		 WHERE tenant_id = $3 AND handler = $4 AND message_id = $5`,
		status, lastError, tenantID, handler, key,
	)
	return err
}

// PostgresFailureStore keeps dispatch failures in PostgreSQL. Events are
// stored as wire envelopes so they can be redelivered with their payload.
type PostgresFailureStore struct {
	db    *sql.DB
	codec *event.Codec
}

func NewPostgresFailureStore(db *sql.DB, codec *event.Codec) *PostgresFailureStore {
	return &PostgresFailureStore{db: db, codec: codec}
}

// RecordFailure always writes outside any unit of work: the failure must
// survive a rollback of the consumer's own transaction.
func (s *PostgresFailureStore) RecordFailure(ctx context.Context, f dispatch.Failure) error {
	envelope, err := s.codec.Encode(f.Event)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dispatch_failures (id, consumer, policy, event_id, envelope, error, occurred_at, attempts, dead)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.ID, f.Consumer, f.Policy, f.Event.ID, envelope, f.Error, f.OccurredAt, f.Attempts, f.Dead,
	)
	return err
}

func (s *PostgresFailureStore) ListFailures(ctx context.Context, limit int) ([]dispatch.Failure, error) {
	return s.list(ctx, false, limit)
}

func (s *PostgresFailureStore) ListDeadFailures(ctx context.Context, limit int) ([]dispatch.Failure, error) {
	return s.list(ctx, true, limit)
}

func (s *PostgresFailureStore) list(ctx context.Context, dead bool, limit int) ([]dispatch.Failure, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, consumer, policy, envelope, error, occurred_at, attempts, dead
		 FROM dispatch_failures
		 WHERE dead = $1
		 ORDER BY occurred_at ASC
		 LIMIT $2`,
		dead, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []dispatch.Failure
	for rows.Next() {
		var (
			f        dispatch.Failure
			envelope []byte
		)
		if err := rows.Scan(&f.ID, &f.Consumer, &f.Policy, &envelope, &f.Error, &f.OccurredAt, &f.Attempts, &f.Dead); err != nil {
			return nil, err
		}
		if f.Event, err = s.codec.Decode(envelope); err != nil {
			return nil, fmt.Errorf("decode failure %s: %w", f.ID, err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

func (s *PostgresFailureStore) UpdateFailure(ctx context.Context, f dispatch.Failure) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dispatch_failures SET attempts = $2, error = $3, dead = $4 WHERE id = $1`,
		f.ID, f.Attempts, f.Error, f.Dead,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failure %s not found", f.ID)
	}
	return nil
}

func (s *PostgresFailureStore) DeleteFailure(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dispatch_failures WHERE id = $1`, id)
	return err
}
