package migration

import (
	"context"

	"imfitboot/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the run store schema. Statements are written to
// run unchanged on both SQLite and PostgreSQL.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create bootstrap_runs table")
	}

	if err := r.createRowsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create ensemble_rows table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bootstrap_runs (
			id TEXT PRIMARY KEY,
			model_name TEXT NOT NULL DEFAULT '',
			quantity TEXT NOT NULL,
			requested INTEGER NOT NULL,
			trials INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			mean DOUBLE PRECISION,
			point_estimate DOUBLE PRECISION,
			columns_json TEXT,
			fit_json TEXT NOT NULL,
			summary_json TEXT,
			manifest_json TEXT NOT NULL,
			bin_edges_json TEXT,
			created_at TEXT NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createRowsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ensemble_rows (
			run_id TEXT NOT NULL REFERENCES bootstrap_runs(id) ON DELETE CASCADE,
			row_index INTEGER NOT NULL,
			params_json TEXT NOT NULL,
			value DOUBLE PRECISION,
			failure_kind TEXT,
			failure_message TEXT,
			PRIMARY KEY (run_id, row_index)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_bootstrap_runs_created_at ON bootstrap_runs(created_at)",
		"CREATE INDEX IF NOT EXISTS idx_bootstrap_runs_quantity ON bootstrap_runs(quantity)",
	}

	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return err
		}
	}

	return nil
}
