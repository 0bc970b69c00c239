package ports

import (
	"context"

	"gometa/domain/meta"
)

// ColumnMapping names the table columns that feed a dataset. Y is required;
// everything else is optional.
type ColumnMapping struct {
	Y          string   `json:"y"`
	V          string   `json:"v,omitempty"`
	N          string   `json:"n,omitempty"`
	Moderators []string `json:"moderators,omitempty"`
	Intercept  bool     `json:"intercept"` // prepend a constant column
}

// TableReader ingests tabular files into datasets for analysis
type TableReader interface {
	Read(ctx context.Context, path string, mapping ColumnMapping) (*meta.Dataset, error)
}
