package migration

import (
	"context"
	"fmt"

	"gometa/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
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
	if err := r.createDatasetsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create datasets table")
	}

	if err := r.createAnalysesTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create analyses table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createDatasetsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS datasets (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) UNIQUE NOT NULL,
			source TEXT,
			fingerprint VARCHAR(64),
			n_studies INTEGER NOT NULL,
			n_datasets INTEGER NOT NULL,
			n_predictors INTEGER NOT NULL,
			y JSONB NOT NULL,
			v JSONB,
			n JSONB,
			x JSONB NOT NULL,
			names JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createAnalysesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analyses (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			dataset_id UUID REFERENCES datasets(id) ON DELETE SET NULL,
			estimator VARCHAR(100) NOT NULL,
			alpha DOUBLE PRECISION NOT NULL,
			estimate JSONB NOT NULL,
			results_table JSONB,
			tau2_ci JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		// Dataset indexes
		"CREATE INDEX IF NOT EXISTS idx_datasets_name ON datasets(name)",
		"CREATE INDEX IF NOT EXISTS idx_datasets_fingerprint ON datasets(fingerprint)",
		"CREATE INDEX IF NOT EXISTS idx_datasets_created_at ON datasets(created_at DESC)",

		// Analysis indexes
		"CREATE INDEX IF NOT EXISTS idx_analyses_dataset_id ON analyses(dataset_id)",
		"CREATE INDEX IF NOT EXISTS idx_analyses_estimator ON analyses(estimator)",
		"CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at DESC)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			// Log but don't fail on index creation errors
			fmt.Printf("Warning: failed to create index: %v\n", err)
		}
	}

	return nil
}
