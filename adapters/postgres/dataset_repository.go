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

// datasetRepository implements the DatasetRepository interface
type datasetRepository struct {
	db *sqlx.DB
}

// NewDatasetRepository creates a new dataset repository
func NewDatasetRepository(db *sqlx.DB) ports.DatasetRepository {
	return &datasetRepository{db: db}
}

// Create inserts a new stored dataset into the database
func (r *datasetRepository) Create(ctx context.Context, ds *meta.StoredDataset) error {
	if ds.Dataset == nil {
		return core.NewValidationError("dataset", "stored dataset has no data attached")
	}

	yJSON, err := json.Marshal(ds.Dataset.Y)
	if err != nil {
		return fmt.Errorf("failed to marshal y: %w", err)
	}
	vJSON, err := marshalOptional(ds.Dataset.V)
	if err != nil {
		return fmt.Errorf("failed to marshal v: %w", err)
	}
	nJSON, err := marshalOptional(ds.Dataset.N)
	if err != nil {
		return fmt.Errorf("failed to marshal n: %w", err)
	}
	xJSON, err := json.Marshal(ds.Dataset.X)
	if err != nil {
		return fmt.Errorf("failed to marshal x: %w", err)
	}
	namesJSON, err := json.Marshal(ds.Dataset.Names)
	if err != nil {
		return fmt.Errorf("failed to marshal names: %w", err)
	}

	query := `INSERT INTO datasets (
		id, name, source, fingerprint, n_studies, n_datasets, n_predictors,
		y, v, n, x, names, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
	)`

	_, err = r.db.ExecContext(ctx, query,
		ds.ID, ds.Name, ds.Source, ds.Fingerprint.String(),
		ds.Dataset.NStudies(), ds.Dataset.NDatasets(), ds.Dataset.NPredictors(),
		yJSON, vJSON, nJSON, xJSON, namesJSON, ds.CreatedAt.Time(),
	)

	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}

	return nil
}

// GetByID retrieves a stored dataset by its ID
func (r *datasetRepository) GetByID(ctx context.Context, id core.DatasetID) (*meta.StoredDataset, error) {
	query := `SELECT
		id, name, COALESCE(source, '') as source, COALESCE(fingerprint, '') as fingerprint,
		y, v, n, x, names, created_at
	FROM datasets WHERE id = $1`

	ds, err := r.scanDataset(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewNotFoundError("dataset", id.String())
		}
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	return ds, nil
}

// GetByName retrieves a stored dataset by its unique name
func (r *datasetRepository) GetByName(ctx context.Context, name string) (*meta.StoredDataset, error) {
	query := `SELECT
		id, name, COALESCE(source, '') as source, COALESCE(fingerprint, '') as fingerprint,
		y, v, n, x, names, created_at
	FROM datasets WHERE name = $1`

	ds, err := r.scanDataset(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewNotFoundError("dataset", name)
		}
		return nil, fmt.Errorf("failed to get dataset by name: %w", err)
	}

	return ds, nil
}

// List retrieves stored datasets with pagination, newest first
func (r *datasetRepository) List(ctx context.Context, limit, offset int) ([]*meta.StoredDataset, error) {
	query := `SELECT
		id, name, COALESCE(source, '') as source, COALESCE(fingerprint, '') as fingerprint,
		y, v, n, x, names, created_at
	FROM datasets
	ORDER BY created_at DESC
	LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*meta.StoredDataset
	for rows.Next() {
		ds, err := r.scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		datasets = append(datasets, ds)
	}

	return datasets, rows.Err()
}

// Delete removes a stored dataset from the database
func (r *datasetRepository) Delete(ctx context.Context, id core.DatasetID) error {
	query := `DELETE FROM datasets WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return core.NewNotFoundError("dataset", id.String())
	}

	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanDataset reads one dataset row and rebuilds the domain object
func (r *datasetRepository) scanDataset(row rowScanner) (*meta.StoredDataset, error) {
	var ds meta.StoredDataset
	var fingerprint string
	var yJSON, vJSON, nJSON, xJSON, namesJSON []byte
	var createdAt time.Time

	err := row.Scan(
		&ds.ID, &ds.Name, &ds.Source, &fingerprint,
		&yJSON, &vJSON, &nJSON, &xJSON, &namesJSON, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	ds.Fingerprint = core.DatasetFingerprint(fingerprint)
	ds.CreatedAt = core.NewTimestamp(createdAt)

	var data meta.Dataset
	if err := json.Unmarshal(yJSON, &data.Y); err != nil {
		return nil, fmt.Errorf("failed to unmarshal y: %w", err)
	}
	if len(vJSON) > 0 {
		if err := json.Unmarshal(vJSON, &data.V); err != nil {
			return nil, fmt.Errorf("failed to unmarshal v: %w", err)
		}
	}
	if len(nJSON) > 0 {
		if err := json.Unmarshal(nJSON, &data.N); err != nil {
			return nil, fmt.Errorf("failed to unmarshal n: %w", err)
		}
	}
	if err := json.Unmarshal(xJSON, &data.X); err != nil {
		return nil, fmt.Errorf("failed to unmarshal x: %w", err)
	}
	if err := json.Unmarshal(namesJSON, &data.Names); err != nil {
		return nil, fmt.Errorf("failed to unmarshal names: %w", err)
	}
	ds.Dataset = &data

	return &ds, nil
}

// marshalOptional serializes a matrix, mapping nil to SQL NULL
func marshalOptional(m [][]float64) (interface{}, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
