package estimators

import (
	"math"

	"gometa/domain/meta"
	"gometa/internal/numerics"
)

// likelihoodEstimator fits tau2 by a score-equation fixed point: alternate a
// WLS solve for beta at the current tau2 with the (restricted) likelihood
// update of tau2 until the iterates settle. Starts from the DerSimonian-Laird
// estimate. On hitting the iteration cap the best iterate is returned with
// the converged flag cleared; that is not an error.
type likelihoodEstimator struct {
	name       string
	restricted bool
	opts       Options
}

// NewML builds the maximum-likelihood variance estimator.
func NewML(opts Options) Estimator {
	return &likelihoodEstimator{name: "ml", opts: opts.withDefaults()}
}

// NewREML builds the restricted maximum-likelihood variance estimator.
func NewREML(opts Options) Estimator {
	return &likelihoodEstimator{name: "reml", restricted: true, opts: opts.withDefaults()}
}

func (e *likelihoodEstimator) Name() string     { return e.name }
func (e *likelihoodEstimator) Input() InputKind { return InputVariance }
func (e *likelihoodEstimator) Closed() bool     { return false }

func (e *likelihoodEstimator) Fit(ds *meta.Dataset) (*meta.Estimate, error) {
	v, err := resolveVariance(ds)
	if err != nil {
		return nil, err
	}
	if err := checkResidualDF(ds); err != nil {
		return nil, err
	}

	start, err := NewDerSimonianLaird().Fit(ds)
	if err != nil {
		return nil, err
	}

	m := ds.NDatasets()
	tau2 := make([]float64, m)
	converged := true
	iterations := 0
	for j := 0; j < m; j++ {
		t, iters, ok := e.iterate(ds.YColumn(j), columnOf(v, j), ds.X, start.Tau2[j])
		tau2[j] = t
		converged = converged && ok
		if iters > iterations {
			iterations = iters
		}
	}

	coefs, covs, err := numerics.SolveWLSBatch(ds.Y, reciprocal(v, tau2), ds.X)
	if err != nil {
		return nil, err
	}
	return &meta.Estimate{
		Coefficients: coefs,
		CovMatrices:  covs,
		Tau2:         tau2,
		Converged:    converged,
		Iterations:   iterations,
	}, nil
}

func (e *likelihoodEstimator) iterate(y, v []float64, x [][]float64, tau2 float64) (float64, int, bool) {
	k := len(y)
	w := make([]float64, k)

	for iter := 1; iter <= e.opts.MaxIter; iter++ {
		for i := range w {
			w[i] = 1.0 / (v[i] + tau2)
		}
		beta, _, err := numerics.SolveWLS(y, w, x)
		if err != nil {
			return tau2, iter, false
		}
		r := numerics.Residuals(y, beta, x)

		num, den := 0.0, 0.0
		for i := range w {
			num += w[i] * w[i] * (r[i]*r[i] - v[i])
			den += w[i] * w[i]
		}
		if e.restricted {
			tr, err := numerics.ProjectionTrace(w, nil, x)
			if err != nil {
				return tau2, iter, false
			}
			num += tr
		}
		next := max(TAU2_FLOOR, num/den)
		if math.Abs(next-tau2) < e.opts.Tol {
			return next, iter, true
		}
		tau2 = next
	}
	return tau2, e.opts.MaxIter, false
}
