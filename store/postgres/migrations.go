package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Prepaid store.
var Migrations = migrate.NewGroup("prepaid")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_prepaid_accounts",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS prepaid_accounts (
    user_id               TEXT PRIMARY KEY,
    currency              TEXT NOT NULL DEFAULT 'usd',
    balance_cents         BIGINT NOT NULL DEFAULT 0,
    reserved_cents        BIGINT NOT NULL DEFAULT 0,
    total_purchased_cents BIGINT NOT NULL DEFAULT 0,
    total_used_cents      BIGINT NOT NULL DEFAULT 0,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT chk_prepaid_accounts_reserved CHECK (reserved_cents >= 0),
    CONSTRAINT chk_prepaid_accounts_hold CHECK (balance_cents >= reserved_cents)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS prepaid_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_prepaid_transactions",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS prepaid_transactions (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL DEFAULT '',
    kind         TEXT NOT NULL DEFAULT 'usage',
    amount_cents BIGINT NOT NULL DEFAULT 0,
    currency     TEXT NOT NULL DEFAULT 'usd',
    status       TEXT NOT NULL DEFAULT 'pending',
    description  TEXT NOT NULL DEFAULT '',
    reference_id TEXT NOT NULL DEFAULT '',
    metadata     JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    settled_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_prepaid_txns_user ON prepaid_transactions (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_prepaid_txns_user_status ON prepaid_transactions (user_id, status);
CREATE INDEX IF NOT EXISTS idx_prepaid_txns_status ON prepaid_transactions (status) WHERE status = 'pending';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS prepaid_transactions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_prepaid_jobs",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS prepaid_jobs (
    id                    TEXT PRIMARY KEY,
    user_id               TEXT NOT NULL DEFAULT '',
    type                  TEXT NOT NULL DEFAULT '',
    status                TEXT NOT NULL DEFAULT 'pending',
    credit_transaction_id TEXT NOT NULL DEFAULT '',
    input                 JSONB,
    result                JSONB,
    failed_reason         TEXT NOT NULL DEFAULT '',
    refund_status         TEXT NOT NULL DEFAULT 'none',
    reconcile_needed      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_prepaid_jobs_user ON prepaid_jobs (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_prepaid_jobs_user_status ON prepaid_jobs (user_id, status);
CREATE INDEX IF NOT EXISTS idx_prepaid_jobs_reconcile ON prepaid_jobs (reconcile_needed) WHERE reconcile_needed;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS prepaid_jobs`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_prepaid_job_types",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS prepaid_job_types (
    id              TEXT PRIMARY KEY,
    key             TEXT NOT NULL DEFAULT '',
    name            TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    price_cents     BIGINT NOT NULL DEFAULT 0,
    currency        TEXT NOT NULL DEFAULT 'usd',
    status          TEXT NOT NULL DEFAULT 'active',
    required_fields JSONB NOT NULL DEFAULT '[]',
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_prepaid_job_types_key ON prepaid_job_types (key);
CREATE INDEX IF NOT EXISTS idx_prepaid_job_types_status ON prepaid_job_types (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS prepaid_job_types`)
				return err
			},
		},
	)
}
