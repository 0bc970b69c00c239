package ports

import (
	"context"

	"gometa/domain/core"
	"gometa/domain/meta"
)

// DatasetRepository defines the interface for stored dataset operations
type DatasetRepository interface {
	// Core CRUD operations
	Create(ctx context.Context, ds *meta.StoredDataset) error
	GetByID(ctx context.Context, id core.DatasetID) (*meta.StoredDataset, error)
	GetByName(ctx context.Context, name string) (*meta.StoredDataset, error)
	List(ctx context.Context, limit, offset int) ([]*meta.StoredDataset, error)
	Delete(ctx context.Context, id core.DatasetID) error
}
