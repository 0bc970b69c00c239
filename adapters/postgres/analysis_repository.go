package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gometa/domain/core"
	"gometa/domain/meta"
	"gometa/ports"

	"github.com/jmoiron/sqlx"
)

// analysisRepository implements the AnalysisRepository interface
type analysisRepository struct {
	db *sqlx.DB
}

// NewAnalysisRepository creates a new analysis repository
func NewAnalysisRepository(db *sqlx.DB) ports.AnalysisRepository {
	return &analysisRepository{db: db}
}

// Create inserts a new analysis record into the database
func (r *analysisRepository) Create(ctx context.Context, rec *meta.AnalysisRecord) error {
	if rec.Estimate == nil {
		return core.NewValidationError("estimate", "analysis record has no estimate attached")
	}

	estimateJSON, err := json.Marshal(rec.Estimate)
	if err != nil {
		return fmt.Errorf("failed to marshal estimate: %w", err)
	}
	var tableJSON interface{}
	if rec.Table != nil {
		tableJSON, err = json.Marshal(rec.Table)
		if err != nil {
			return fmt.Errorf("failed to marshal table: %w", err)
		}
	}
	var tau2CIJSON interface{}
	if rec.Tau2CI != nil {
		tau2CIJSON, err = json.Marshal(rec.Tau2CI)
		if err != nil {
			return fmt.Errorf("failed to marshal tau2 CI: %w", err)
		}
	}

	query := `INSERT INTO analyses (
		id, dataset_id, estimator, alpha, estimate, results_table, tau2_ci, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8
	)`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, nullableID(string(rec.DatasetID)), rec.Estimator, rec.Alpha,
		estimateJSON, tableJSON, tau2CIJSON, rec.CreatedAt.Time(),
	)

	if err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}

	return nil
}

// GetByID retrieves an analysis record by its ID
func (r *analysisRepository) GetByID(ctx context.Context, id core.AnalysisID) (*meta.AnalysisRecord, error) {
	query := `SELECT
		id, COALESCE(dataset_id::text, '') as dataset_id, estimator, alpha,
		estimate, results_table, tau2_ci, created_at
	FROM analyses WHERE id = $1`

	rec, err := r.scanAnalysis(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewNotFoundError("analysis", id.String())
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	return rec, nil
}

// ListByDataset retrieves analyses for a dataset with pagination, newest first
func (r *analysisRepository) ListByDataset(ctx context.Context, datasetID core.DatasetID, limit, offset int) ([]*meta.AnalysisRecord, error) {
	query := `SELECT
		id, COALESCE(dataset_id::text, '') as dataset_id, estimator, alpha,
		estimate, results_table, tau2_ci, created_at
	FROM analyses
	WHERE dataset_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, datasetID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses by dataset: %w", err)
	}
	defer rows.Close()

	return r.scanAnalyses(rows)
}

// ListRecent retrieves the most recent analyses across all datasets
func (r *analysisRepository) ListRecent(ctx context.Context, limit int) ([]*meta.AnalysisRecord, error) {
	query := `SELECT
		id, COALESCE(dataset_id::text, '') as dataset_id, estimator, alpha,
		estimate, results_table, tau2_ci, created_at
	FROM analyses
	ORDER BY created_at DESC
	LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent analyses: %w", err)
	}
	defer rows.Close()

	return r.scanAnalyses(rows)
}

// Delete removes an analysis record from the database
func (r *analysisRepository) Delete(ctx context.Context, id core.AnalysisID) error {
	query := `DELETE FROM analyses WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return core.NewNotFoundError("analysis", id.String())
	}

	return nil
}

// scanAnalysis reads one analysis row and rebuilds the domain object
func (r *analysisRepository) scanAnalysis(row rowScanner) (*meta.AnalysisRecord, error) {
	var rec meta.AnalysisRecord
	var estimateJSON, tableJSON, tau2CIJSON []byte
	var createdAt time.Time

	err := row.Scan(
		&rec.ID, &rec.DatasetID, &rec.Estimator, &rec.Alpha,
		&estimateJSON, &tableJSON, &tau2CIJSON, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = core.NewTimestamp(createdAt)

	if err := json.Unmarshal(estimateJSON, &rec.Estimate); err != nil {
		return nil, fmt.Errorf("failed to unmarshal estimate: %w", err)
	}
	if len(tableJSON) > 0 {
		if err := json.Unmarshal(tableJSON, &rec.Table); err != nil {
			return nil, fmt.Errorf("failed to unmarshal table: %w", err)
		}
	}
	if len(tau2CIJSON) > 0 {
		if err := json.Unmarshal(tau2CIJSON, &rec.Tau2CI); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tau2 CI: %w", err)
		}
	}

	return &rec, nil
}

// scanAnalyses is a helper function to scan multiple analysis rows
func (r *analysisRepository) scanAnalyses(rows *sql.Rows) ([]*meta.AnalysisRecord, error) {
	var records []*meta.AnalysisRecord
	for rows.Next() {
		rec, err := r.scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// nullableID maps an empty ID string to SQL NULL
func nullableID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}
