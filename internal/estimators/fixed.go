package estimators

import (
	"gometa/domain/meta"
	"gometa/internal/numerics"
)

// FixedEffect performs a single weighted least squares solve with the
// between-study variance pinned at a known constant (0 by default). It is the
// cheapest member of the family and the reference point for the others.
type FixedEffect struct {
	tau2 float64
}

// NewFixedEffect pins tau2 at the given value. Pass 0 for the classic
// fixed-effect model.
func NewFixedEffect(tau2 float64) *FixedEffect {
	if tau2 < TAU2_FLOOR {
		tau2 = TAU2_FLOOR
	}
	return &FixedEffect{tau2: tau2}
}

func (e *FixedEffect) Name() string     { return "fixed-effect" }
func (e *FixedEffect) Input() InputKind { return InputVariance }
func (e *FixedEffect) Closed() bool     { return true }

func (e *FixedEffect) Fit(ds *meta.Dataset) (*meta.Estimate, error) {
	v, err := resolveVariance(ds)
	if err != nil {
		return nil, err
	}

	shift := make([]float64, ds.NDatasets())
	for j := range shift {
		shift[j] = e.tau2
	}
	w := reciprocal(v, shift)
	coefs, covs, err := numerics.SolveWLSBatch(ds.Y, w, ds.X)
	if err != nil {
		return nil, err
	}

	tau2 := make([]float64, ds.NDatasets())
	for j := range tau2 {
		tau2[j] = e.tau2
	}
	return &meta.Estimate{
		Coefficients: coefs,
		CovMatrices:  covs,
		Tau2:         tau2,
		Converged:    true,
	}, nil
}
