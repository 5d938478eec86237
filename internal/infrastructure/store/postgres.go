package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/erp-event-pipeline/internal/uow"
	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE Postgres returns for a unique constraint hit.
const uniqueViolation = "23505"

func isDuplicateKeyErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the unit-of-work transaction from ctx when there is one.
func conn(ctx context.Context, db *sql.DB) executor {
	if tx, ok := uow.TxFromContext(ctx); ok {
		if sqlTx, ok := tx.(*sql.Tx); ok {
			return sqlTx
		}
	}
	return db
}

// PostgresTransactor opens database transactions for units of work.
type PostgresTransactor struct {
	db *sql.DB
}

func NewPostgresTransactor(db *sql.DB) *PostgresTransactor {
	return &PostgresTransactor{db: db}
}

func (t *PostgresTransactor) Begin(ctx context.Context) (uow.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The transaction outlives a cancelled request ctx until commit or rollback.
	tx, err := t.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate creates the tables used by the Postgres stores.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

// Schema is the DDL for every Postgres store.
const Schema = `
CREATE TABLE IF NOT EXISTS sales (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	shop_id        TEXT NOT NULL,
	customer_id    TEXT,
	items          JSONB NOT NULL,
	total_amount   NUMERIC(20,4) NOT NULL,
	tax_amount     NUMERIC(20,4) NOT NULL,
	payment_method TEXT NOT NULL,
	status         TEXT NOT NULL,
	sale_date      TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_levels (
	tenant_id     TEXT NOT NULL,
	item_id       TEXT NOT NULL,
	shop_id       TEXT NOT NULL,
	quantity      NUMERIC(20,4) NOT NULL,
	minimum_stock NUMERIC(20,4) NOT NULL DEFAULT 0,
	version       INTEGER NOT NULL DEFAULT 0,
	updated_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, item_id, shop_id)
);

CREATE TABLE IF NOT EXISTS stock_movements (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	item_id         TEXT NOT NULL,
	shop_id         TEXT NOT NULL,
	quantity_before NUMERIC(20,4) NOT NULL,
	quantity_delta  NUMERIC(20,4) NOT NULL,
	quantity_after  NUMERIC(20,4) NOT NULL,
	reference_type  TEXT NOT NULL,
	reference_id    TEXT NOT NULL,
	movement_date   TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, reference_type, reference_id, item_id),
	CHECK (quantity_after = quantity_before + quantity_delta)
);

CREATE TABLE IF NOT EXISTS stock_alerts (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	item_id         TEXT NOT NULL,
	shop_id         TEXT NOT NULL,
	current_stock   NUMERIC(20,4) NOT NULL,
	minimum_stock   NUMERIC(20,4) NOT NULL,
	acknowledged    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL,
	acknowledged_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS stock_alerts_open_uniq
	ON stock_alerts (tenant_id, item_id, shop_id) WHERE NOT acknowledged;

CREATE TABLE IF NOT EXISTS customers (
	tenant_id             TEXT NOT NULL,
	id                    TEXT NOT NULL,
	total_purchases       INTEGER NOT NULL DEFAULT 0,
	total_purchase_amount NUMERIC(20,4) NOT NULL DEFAULT 0,
	first_purchase_date   TIMESTAMPTZ,
	last_purchase_date    TIMESTAMPTZ,
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS accounts (
	id        TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	code      TEXT NOT NULL,
	name      TEXT NOT NULL,
	type      TEXT NOT NULL,
	UNIQUE (tenant_id, code)
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	account_id       TEXT NOT NULL REFERENCES accounts (id),
	account_code     TEXT NOT NULL,
	amount           NUMERIC(20,4) NOT NULL CHECK (amount > 0),
	direction        TEXT NOT NULL CHECK (direction IN ('debit', 'credit')),
	category         TEXT NOT NULL,
	reference_type   TEXT NOT NULL,
	reference_id     TEXT NOT NULL,
	transaction_date TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_entries_reference_idx
	ON ledger_entries (tenant_id, reference_type, reference_id);

CREATE TABLE IF NOT EXISTS payments (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	reference_type TEXT NOT NULL,
	reference_id   TEXT NOT NULL,
	method         TEXT NOT NULL,
	amount         NUMERIC(20,4) NOT NULL,
	paid_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	sale_id     TEXT NOT NULL,
	type        TEXT NOT NULL,
	customer_id TEXT,
	amount      NUMERIC(20,4) NOT NULL,
	tax_amount  NUMERIC(20,4) NOT NULL,
	issued_at   TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, sale_id, type)
);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	tenant_id  TEXT NOT NULL,
	handler    TEXT NOT NULL,
	message_id TEXT NOT NULL,
	status     TEXT NOT NULL,
	last_error TEXT,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, handler, message_id)
);

CREATE TABLE IF NOT EXISTS dispatch_failures (
	id          TEXT PRIMARY KEY,
	consumer    TEXT NOT NULL,
	policy      TEXT NOT NULL,
	event_id    TEXT NOT NULL,
	envelope    JSONB NOT NULL,
	error       TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	dead        BOOLEAN NOT NULL DEFAULT FALSE
);
ALTER TABLE dispatch_failures ADD COLUMN IF NOT EXISTS attempts INTEGER NOT NULL DEFAULT 0;
ALTER TABLE dispatch_failures ADD COLUMN IF NOT EXISTS dead BOOLEAN NOT NULL DEFAULT FALSE;
CREATE INDEX IF NOT EXISTS dispatch_failures_live_idx
	ON dispatch_failures (dead, occurred_at);
`
