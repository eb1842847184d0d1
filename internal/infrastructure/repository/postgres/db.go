package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockKey int64 = 2026101601

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates every table the engine needs. The api and the worker
// both call it on startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS processes (
	case_number TEXT PRIMARY KEY,
	court_id TEXT NOT NULL DEFAULT '',
	court_name TEXT NOT NULL DEFAULT '',
	distribution_date TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT '',
	phase TEXT NOT NULL DEFAULT '',
	case_value NUMERIC(20,2),
	judge_name TEXT NOT NULL DEFAULT '',
	authors JSONB NOT NULL DEFAULT '[]'::jsonb,
	defendants JSONB NOT NULL DEFAULT '[]'::jsonb,
	parties JSONB NOT NULL DEFAULT '[]'::jsonb,
	associated_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	provider TEXT NOT NULL DEFAULT '',
	last_update TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_processes_associated_ids ON processes USING GIN (associated_ids);
CREATE INDEX IF NOT EXISTS idx_processes_updated_at ON processes(updated_at DESC);

CREATE TABLE IF NOT EXISTS credit_accounts (
	user_id TEXT PRIMARY KEY,
	balance NUMERIC(18,4) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	cost_per_credit NUMERIC(18,4) NOT NULL DEFAULT 0,
	plan TEXT NOT NULL DEFAULT 'basic',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS credit_transactions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	amount NUMERIC(18,4) NOT NULL,
	operation TEXT NOT NULL,
	monetary_cost NUMERIC(18,4) NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	reference TEXT NOT NULL UNIQUE,
	balance_after NUMERIC(18,4) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_credit_transactions_user ON credit_transactions(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS async_search_jobs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	identifier_type TEXT NOT NULL,
	identifier_value TEXT NOT NULL,
	provider TEXT NOT NULL,
	provider_request_id TEXT NOT NULL,
	status TEXT NOT NULL,
	result_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	credits_consumed NUMERIC(18,4) NOT NULL DEFAULT 0,
	reservation_id TEXT NOT NULL DEFAULT '',
	estimated_minutes INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	UNIQUE (provider, provider_request_id)
);

CREATE INDEX IF NOT EXISTS idx_async_search_jobs_open ON async_search_jobs(created_at) WHERE status IN ('pending', 'processing');

CREATE TABLE IF NOT EXISTS monitorings (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	identifier_type TEXT NOT NULL,
	identifier_value TEXT NOT NULL,
	case_number TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT '',
	provider_tracking_id TEXT NOT NULL DEFAULT '',
	frequency TEXT NOT NULL,
	status TEXT NOT NULL,
	alerts_count INTEGER NOT NULL DEFAULT 0,
	last_checked_at TIMESTAMPTZ,
	next_check_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, identifier_type, identifier_value)
);

CREATE INDEX IF NOT EXISTS idx_monitorings_tracking ON monitorings(provider, provider_tracking_id);
CREATE INDEX IF NOT EXISTS idx_monitorings_case_number ON monitorings(case_number) WHERE case_number <> '';

CREATE TABLE IF NOT EXISTS monitoring_alerts (
	id TEXT PRIMARY KEY,
	monitoring_id TEXT NOT NULL REFERENCES monitorings(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	title TEXT NOT NULL,
	case_number TEXT NOT NULL DEFAULT '',
	payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	dedupe_key TEXT NOT NULL,
	unread BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (monitoring_id, dedupe_key)
);

CREATE TABLE IF NOT EXISTS callback_logs (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	correlation_id TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL DEFAULT '',
	delivery_key TEXT NOT NULL DEFAULT '',
	raw_payload BYTEA,
	valid BOOLEAN NOT NULL,
	status TEXT NOT NULL,
	target_type TEXT NOT NULL DEFAULT '',
	target_id TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	received_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_callback_logs_delivery_key ON callback_logs(delivery_key);
CREATE INDEX IF NOT EXISTS idx_callback_logs_received_at ON callback_logs(received_at DESC);

CREATE TABLE IF NOT EXISTS search_history (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	identifier_type TEXT NOT NULL,
	identifier_value TEXT NOT NULL,
	results_count INTEGER NOT NULL DEFAULT 0,
	from_cache BOOLEAN NOT NULL DEFAULT FALSE,
	credits_consumed NUMERIC(18,4) NOT NULL DEFAULT 0,
	provider TEXT NOT NULL DEFAULT '',
	job_id TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_history_user ON search_history(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	reference_id TEXT NOT NULL DEFAULT '',
	read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);
`

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
