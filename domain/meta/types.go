package meta

// Estimate holds the raw fitted parameters of one estimator invocation,
// vectorized across parallel datasets.
type Estimate struct {
	Coefficients [][]float64   `json:"coefficients"`     // n_predictors x n_datasets
	CovMatrices  [][][]float64 `json:"cov_matrices"`     // per dataset: n_predictors x n_predictors
	Tau2         []float64     `json:"tau2,omitempty"`   // per dataset, floored at 0; nil for fixed-effect fits
	Sigma2       []float64     `json:"sigma2,omitempty"` // per dataset, sample-size variants only
	Converged    bool          `json:"converged"`
	Iterations   int           `json:"iterations"`
}

// NDatasets returns the number of parallel analyses the estimate covers.
func (e *Estimate) NDatasets() int {
	if len(e.Coefficients) == 0 {
		return 0
	}
	return len(e.Coefficients[0])
}

// NPredictors returns the number of fitted coefficients per analysis.
func (e *Estimate) NPredictors() int { return len(e.Coefficients) }

// FEStats are the derived fixed-effect statistics at a given alpha.
type FEStats struct {
	SE      [][]float64 `json:"se"`       // n_predictors x n_datasets
	Z       [][]float64 `json:"z"`        // n_predictors x n_datasets
	P       [][]float64 `json:"p"`        // two-sided normal p-values
	CILower [][]float64 `json:"ci_lower"` // beta - z_(1-alpha/2) * se
	CIUpper [][]float64 `json:"ci_upper"`
	Alpha   float64     `json:"alpha"`
}

// REStats are the derived random-effects statistics at a given alpha.
type REStats struct {
	Tau2    []float64 `json:"tau2"`     // per dataset
	CILower []float64 `json:"ci_lower"` // per dataset; 0 when the lower search degrades
	CIUpper []float64 `json:"ci_upper"` // per dataset; +Inf when the upper search degrades
	Alpha   float64   `json:"alpha"`
	Method  string    `json:"method"`
}

// Heterogeneity summarizes between-study dispersion for one parallel dataset.
type Heterogeneity struct {
	Q      float64 `json:"q"`       // weighted residual sum of squares at tau2=0
	DF     int     `json:"df"`      // n_studies - n_predictors
	I2     float64 `json:"i2"`      // max(0, (Q-df)/Q) * 100
	H2     float64 `json:"h2"`      // Q / df
	PValue float64 `json:"p_value"` // chi-square upper tail of Q
}

// TableRow is one predictor's row of the flat results table. PPerm is set
// only when the row came from a permutation test.
type TableRow struct {
	Name     string   `json:"name"`
	Estimate float64  `json:"estimate"`
	SE       float64  `json:"se"`
	Z        float64  `json:"z"`
	P        float64  `json:"p"`
	PPerm    *float64 `json:"p_perm,omitempty"`
	CILower  float64  `json:"ci_lower"`
	CIUpper  float64  `json:"ci_upper"`
}
