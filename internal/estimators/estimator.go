package estimators

import (
	"gometa/domain/core"
	"gometa/domain/meta"
)

// InputKind declares which per-study uncertainty input an estimator consumes.
// The declaration is static: input resolution never inspects fit signatures.
type InputKind int

const (
	// InputVariance estimators weight by known sampling variances (v).
	InputVariance InputKind = iota
	// InputSampleSize estimators substitute sigma2/n for missing variances.
	InputSampleSize
)

func (k InputKind) String() string {
	if k == InputSampleSize {
		return "sample-size"
	}
	return "variance"
}

// Estimator is the single fitting contract shared by every variant. Closed
// estimators are pure closed-form solutions that refit cheaply on batched
// inputs; only those are eligible for permutation testing.
type Estimator interface {
	Name() string
	Input() InputKind
	Closed() bool
	Fit(ds *meta.Dataset) (*meta.Estimate, error)
}

// Options carries the iterative-fit tunables. Zero values fall back to the
// package defaults.
type Options struct {
	Tol     float64
	MaxIter int
}

func (o Options) withDefaults() Options {
	if o.Tol <= 0 {
		o.Tol = ESTIMATOR_TOL
	}
	if o.MaxIter <= 0 {
		o.MaxIter = ESTIMATOR_MAX_ITER
	}
	return o
}

// resolveVariance enforces the variance input contract, naming the missing
// field in the error.
func resolveVariance(ds *meta.Dataset) ([][]float64, error) {
	if !ds.HasV() {
		return nil, core.NewInsufficientDataError("v")
	}
	return ds.V, nil
}

// resolveSampleSize enforces the sample-size input contract.
func resolveSampleSize(ds *meta.Dataset) ([][]float64, error) {
	if !ds.HasN() {
		return nil, core.NewInsufficientDataError("n")
	}
	return ds.N, nil
}

// reciprocal builds elementwise weights 1/(m + shift) for one column shift.
func reciprocal(m [][]float64, shift []float64) [][]float64 {
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = make([]float64, len(m[i]))
		for j := range m[i] {
			s := 0.0
			if shift != nil {
				s = shift[j]
			}
			out[i][j] = 1.0 / (m[i][j] + s)
		}
	}
	return out
}

func columnOf(m [][]float64, j int) []float64 {
	col := make([]float64, len(m))
	for i := range m {
		col[i] = m[i][j]
	}
	return col
}
