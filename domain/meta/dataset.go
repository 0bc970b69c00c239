package meta

import (
	"fmt"

	"gometa/domain/core"
)

// Dataset is the input bundle for a meta-regression: per-study effect sizes
// with their sampling variances (or sample sizes) and a shared design matrix.
// The outcome arrays are vectorized across parallel datasets: column j of Y
// (and of V/N) is an independent analysis sharing the same design.
// Datasets are constructed once and treated as read-only afterwards.
//
// INVARIANTS:
// - Y always present, rectangular, at least one row and one column
// - V and N, when present, have exactly Y's shape
// - X has one row per study; the design is shared across all Y columns
// - len(Names) == number of predictors
type Dataset struct {
	Y     [][]float64 `json:"y"`           // effect sizes (n_studies x n_datasets)
	V     [][]float64 `json:"v,omitempty"` // sampling variances, same shape as Y
	N     [][]float64 `json:"n,omitempty"` // sample sizes, same shape as Y
	X     [][]float64 `json:"x"`           // design matrix (n_studies x n_predictors)
	Names []string    `json:"names"`       // predictor names, design order
}

// NewDataset validates and assembles a Dataset. When addIntercept is true a
// constant-1 column named "intercept" is prepended to the design. A nil x
// with addIntercept gives an intercept-only design; a nil x without an
// intercept has no predictors to fit and is rejected.
func NewDataset(y, v, n, x [][]float64, names []string, addIntercept bool) (*Dataset, error) {
	if len(y) == 0 || len(y[0]) == 0 {
		return nil, core.NewValidationError("y", "must have at least one study and one column")
	}
	nStudies := len(y)
	nCols := len(y[0])
	for i, row := range y {
		if len(row) != nCols {
			return nil, core.NewValidationError("y", fmt.Sprintf("row %d has %d columns, expected %d", i, len(row), nCols))
		}
	}

	if v != nil {
		if err := checkShape("v", v, nStudies, nCols); err != nil {
			return nil, err
		}
		for i, row := range v {
			for j, val := range row {
				if val <= 0 {
					return nil, core.NewValidationError("v", fmt.Sprintf("variance at [%d][%d] is %v, must be positive", i, j, val))
				}
			}
		}
	}
	if n != nil {
		if err := checkShape("n", n, nStudies, nCols); err != nil {
			return nil, err
		}
		for i, row := range n {
			for j, val := range row {
				if val <= 0 {
					return nil, core.NewValidationError("n", fmt.Sprintf("sample size at [%d][%d] is %v, must be positive", i, j, val))
				}
			}
		}
	}

	if x == nil && !addIntercept {
		return nil, core.NewValidationError("x", "no design matrix provided and intercept disabled; nothing to fit")
	}

	var design [][]float64
	var designNames []string
	nMods := 0
	if x != nil {
		if len(x) != nStudies {
			return nil, core.NewShapeError("x", nStudies, len(x))
		}
		nMods = len(x[0])
		for i, row := range x {
			if len(row) != nMods {
				return nil, core.NewValidationError("x", fmt.Sprintf("row %d has %d columns, expected %d", i, len(row), nMods))
			}
		}
	}
	if names != nil && len(names) != nMods {
		return nil, core.NewValidationError("names", fmt.Sprintf("%d names for %d predictors", len(names), nMods))
	}

	offset := 0
	if addIntercept {
		offset = 1
		designNames = append(designNames, "intercept")
	}
	design = make([][]float64, nStudies)
	for i := range design {
		design[i] = make([]float64, offset+nMods)
		if addIntercept {
			design[i][0] = 1
		}
		for j := 0; j < nMods; j++ {
			design[i][offset+j] = x[i][j]
		}
	}
	for j := 0; j < nMods; j++ {
		if names != nil {
			designNames = append(designNames, names[j])
		} else {
			designNames = append(designNames, fmt.Sprintf("x%d", j))
		}
	}

	return &Dataset{Y: y, V: v, N: n, X: design, Names: designNames}, nil
}

// FromColumns builds a single-analysis Dataset from flat vectors.
func FromColumns(y, v, n []float64, x [][]float64, names []string, addIntercept bool) (*Dataset, error) {
	var vm, nm [][]float64
	if v != nil {
		if len(v) != len(y) {
			return nil, core.NewShapeError("v", len(y), len(v))
		}
		vm = ColumnMatrix(v)
	}
	if n != nil {
		if len(n) != len(y) {
			return nil, core.NewShapeError("n", len(y), len(n))
		}
		nm = ColumnMatrix(n)
	}
	return NewDataset(ColumnMatrix(y), vm, nm, x, names, addIntercept)
}

// ColumnMatrix wraps a vector as a single-column matrix.
func ColumnMatrix(col []float64) [][]float64 {
	m := make([][]float64, len(col))
	for i, val := range col {
		m[i] = []float64{val}
	}
	return m
}

func checkShape(field string, m [][]float64, rows, cols int) error {
	if len(m) != rows {
		return core.NewShapeError(field, rows, len(m))
	}
	for i, row := range m {
		if len(row) != cols {
			return core.NewValidationError(field, fmt.Sprintf("row %d has %d columns, expected %d", i, len(row), cols))
		}
	}
	return nil
}

// NStudies returns the number of studies (rows).
func (d *Dataset) NStudies() int { return len(d.Y) }

// NDatasets returns the number of parallel analyses (columns of Y).
func (d *Dataset) NDatasets() int {
	if len(d.Y) == 0 {
		return 0
	}
	return len(d.Y[0])
}

// NPredictors returns the number of design columns, intercept included.
func (d *Dataset) NPredictors() int {
	if len(d.X) == 0 {
		return 0
	}
	return len(d.X[0])
}

// HasV reports whether sampling variances are available.
func (d *Dataset) HasV() bool { return d.V != nil }

// HasN reports whether sample sizes are available.
func (d *Dataset) HasN() bool { return d.N != nil }

// HasModerators reports whether the design contains any non-intercept column.
// A column is an intercept column when every entry equals its first entry.
func (d *Dataset) HasModerators() bool {
	for j := 0; j < d.NPredictors(); j++ {
		first := d.X[0][j]
		for i := 1; i < d.NStudies(); i++ {
			if d.X[i][j] != first {
				return true
			}
		}
	}
	return false
}

// YColumn extracts parallel dataset j of the effect sizes.
func (d *Dataset) YColumn(j int) []float64 { return column(d.Y, j) }

// VColumn extracts parallel dataset j of the sampling variances.
func (d *Dataset) VColumn(j int) []float64 { return column(d.V, j) }

// NColumn extracts parallel dataset j of the sample sizes.
func (d *Dataset) NColumn(j int) []float64 { return column(d.N, j) }

// Fingerprint digests the numeric content of the bundle. Two datasets
// with identical y, v, n and design share a fingerprint regardless of
// how they were named or imported.
func (d *Dataset) Fingerprint() core.DatasetFingerprint {
	return core.ComputeDatasetFingerprint(d.Y, d.V, d.N, d.X)
}

func column(m [][]float64, j int) []float64 {
	if m == nil {
		return nil
	}
	col := make([]float64, len(m))
	for i := range m {
		col[i] = m[i][j]
	}
	return col
}
