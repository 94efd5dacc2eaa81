// Package store is the persistence gateway. It exclusively owns writes to
// every table; all other components pass intents to it. Backed by Postgres
// in production (lib/pq) and by sqlite in unit tests; the SQL is kept
// compatible with both.
package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
)

// Sentinel errors for lookups.
var (
	ErrEvidenceNotFound = errors.New("store: evidence not found")
	ErrRunNotFound      = errors.New("store: workflow run not found")
	ErrPlanNotFound     = errors.New("store: action plan not found")
	ErrTenantNotFound   = errors.New("store: tenant not found")
)

// Store wraps the shared connection pool. Every unit of work runs in its
// own transaction; no cross-request transactions.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Store over an open database handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "store"),
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'ACTIVE',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS vendors (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	name TEXT NOT NULL,
	code TEXT,
	country TEXT,
	risk_score INTEGER NOT NULL DEFAULT 0,
	risk_level TEXT NOT NULL DEFAULT 'low',
	approved BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS feed_items (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	external_id TEXT NOT NULL,
	title TEXT NOT NULL,
	url TEXT,
	published_at TIMESTAMP,
	summary TEXT,
	category TEXT NOT NULL,
	vendor_name TEXT,
	status TEXT,
	tags TEXT,
	raw_payload TEXT,
	ingested_at TIMESTAMP NOT NULL,
	UNIQUE (source, external_id)
);

CREATE TABLE IF NOT EXISTS sync_status (
	source TEXT PRIMARY KEY,
	last_run_at TIMESTAMP NOT NULL,
	last_success_at TIMESTAMP,
	last_error_at TIMESTAMP,
	last_error_message TEXT,
	last_http_status INTEGER,
	items_fetched INTEGER NOT NULL DEFAULT 0,
	items_saved INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS evidence (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	extracted_text TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT,
	processed_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_runs (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	evidence_id TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	error_message TEXT,
	findings_count INTEGER NOT NULL DEFAULT 0,
	correlations_count INTEGER NOT NULL DEFAULT 0,
	actions_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS findings (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES workflow_runs(id),
	evidence_id TEXT NOT NULL,
	seq INTEGER NOT NULL DEFAULT 0,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	severity TEXT NOT NULL,
	cfr_refs TEXT,
	citations TEXT,
	entities TEXT
);

CREATE TABLE IF NOT EXISTS action_plans (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL UNIQUE REFERENCES workflow_runs(id),
	evidence_id TEXT NOT NULL,
	rationale TEXT NOT NULL DEFAULT '',
	actions TEXT NOT NULL,
	owners TEXT,
	deadlines TEXT,
	correlation_snapshot TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	actor_id TEXT,
	action TEXT NOT NULL,
	entity_type TEXT,
	entity_id TEXT,
	details TEXT,
	source_address TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feed_items_published ON feed_items (published_at);
CREATE INDEX IF NOT EXISTS idx_workflow_runs_evidence ON workflow_runs (evidence_id);
CREATE INDEX IF NOT EXISTS idx_findings_run ON findings (run_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_tenant ON audit_log (tenant_id);
`

// Init creates the schema.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// DB exposes the underlying handle for health probes.
func (s *Store) DB() *sql.DB {
	return s.db
}
