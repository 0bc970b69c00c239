package ports

import (
	"context"

	"gometa/domain/core"
	"gometa/domain/meta"
)

// AnalysisRepository defines the interface for analysis record storage
type AnalysisRepository interface {
	// Core CRUD operations
	Create(ctx context.Context, rec *meta.AnalysisRecord) error
	GetByID(ctx context.Context, id core.AnalysisID) (*meta.AnalysisRecord, error)
	ListByDataset(ctx context.Context, datasetID core.DatasetID, limit, offset int) ([]*meta.AnalysisRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*meta.AnalysisRecord, error)
	Delete(ctx context.Context, id core.AnalysisID) error
}
