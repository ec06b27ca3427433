package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const MigrationSQL = `
-- Background jobs table: the single source of truth for deferred work.
CREATE TABLE background_jobs (
	id UUID PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	job_type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	scheduled_for TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	payload JSONB NOT NULL,
	result JSONB,
	last_error TEXT,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE sequences (
	id UUID PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	name TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	stop_on_reply BOOLEAN NOT NULL DEFAULT FALSE,
	stop_on_booking BOOLEAN NOT NULL DEFAULT FALSE,
	steps JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE sequence_enrollments (
	id UUID PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	sequence_id UUID NOT NULL REFERENCES sequences(id),
	customer_id TEXT NOT NULL,
	crm_job_id TEXT,
	current_step INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	next_step_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	stopped_at TIMESTAMPTZ,
	stop_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Read-only CRM projections used for personalization.
CREATE TABLE workspaces (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	owner_email TEXT NOT NULL DEFAULT '',
	owner_phone TEXT NOT NULL DEFAULT ''
);

CREATE TABLE customers (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	opted_out BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE crm_jobs (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'lead',
	scheduled_at TIMESTAMPTZ
);

CREATE INDEX idx_jobs_due ON background_jobs(status, scheduled_for);
CREATE INDEX idx_jobs_workspace ON background_jobs(workspace_id, status);
CREATE INDEX idx_jobs_enrollment ON background_jobs((payload->>'enrollment_id'))
	WHERE job_type = 'sequence_step';
CREATE INDEX idx_sequences_workspace ON sequences(workspace_id);
CREATE INDEX idx_enrollments_customer ON sequence_enrollments(workspace_id, customer_id, status);
-- One active enrollment per (sequence, customer).
CREATE UNIQUE INDEX idx_enrollments_active ON sequence_enrollments(sequence_id, customer_id)
	WHERE status = 'active';
`

func SetupTestDatabase(t *testing.T, ctx context.Context) (testcontainers.Container, *pgxpool.Pool) {
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15"),
		postgres.WithDatabase("workflow_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, MigrationSQL)
	require.NoError(t, err)

	return pgContainer, pool
}

func CleanupTestDatabase(t *testing.T, ctx context.Context, container testcontainers.Container, pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		err := container.Terminate(ctx)
		require.NoError(t, err)
	}
}

func TruncateTables(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, `TRUNCATE TABLE background_jobs, sequence_enrollments, sequences, customers, crm_jobs, workspaces CASCADE`)
	require.NoError(t, err)
}
