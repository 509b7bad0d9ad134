package postgres

import (
	"context"
	"fmt"

	"github.com/animus-labs/pipelinectl/internal/platform/auditlog"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		run_id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		pipeline_name TEXT NOT NULL,
		run_name TEXT,
		parameters JSONB NOT NULL DEFAULT '{}'::jsonb,
		status TEXT NOT NULL,
		submitted_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pipeline_run_status_events (
		event_id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES pipeline_runs (run_id) ON DELETE CASCADE,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS pipeline_run_status_events_run_idx
		ON pipeline_run_status_events (run_id, observed_at)`,
	auditlog.Schema,
}

// Migrate creates the ledger and audit tables when they are missing.
func Migrate(ctx context.Context, db DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
