package estimators

import (
	"math"

	"gometa/domain/meta"
	"gometa/internal/numerics"
)

// sampleSizeEstimator handles datasets with no known sampling variances: the
// effective variance of study i is sigma2/n_i with sigma2 a pooled residual
// variance estimated jointly with tau2. The joint fixed point starts from the
// unweighted fit (tau2=0, sigma2 from n-weighted OLS residuals).
type sampleSizeEstimator struct {
	name       string
	restricted bool
	opts       Options
}

// NewSampleSizeML builds the sample-size-based maximum-likelihood estimator.
func NewSampleSizeML(opts Options) Estimator {
	return &sampleSizeEstimator{name: "sample-size-ml", opts: opts.withDefaults()}
}

// NewSampleSizeREML builds the sample-size-based restricted ML estimator.
func NewSampleSizeREML(opts Options) Estimator {
	return &sampleSizeEstimator{name: "sample-size-reml", restricted: true, opts: opts.withDefaults()}
}

func (e *sampleSizeEstimator) Name() string     { return e.name }
func (e *sampleSizeEstimator) Input() InputKind { return InputSampleSize }
func (e *sampleSizeEstimator) Closed() bool     { return false }

func (e *sampleSizeEstimator) Fit(ds *meta.Dataset) (*meta.Estimate, error) {
	n, err := resolveSampleSize(ds)
	if err != nil {
		return nil, err
	}
	if err := checkResidualDF(ds); err != nil {
		return nil, err
	}

	m := ds.NDatasets()
	tau2 := make([]float64, m)
	sigma2 := make([]float64, m)
	converged := true
	iterations := 0
	for j := 0; j < m; j++ {
		t, s, iters, ok := e.iterate(ds.YColumn(j), columnOf(n, j), ds.X)
		tau2[j] = t
		sigma2[j] = s
		converged = converged && ok
		if iters > iterations {
			iterations = iters
		}
	}

	// Final solve at the fitted effective variances.
	w := make([][]float64, ds.NStudies())
	for i := range w {
		w[i] = make([]float64, m)
		for j := 0; j < m; j++ {
			w[i][j] = 1.0 / (sigma2[j]/n[i][j] + tau2[j])
		}
	}
	coefs, covs, err := numerics.SolveWLSBatch(ds.Y, w, ds.X)
	if err != nil {
		return nil, err
	}
	return &meta.Estimate{
		Coefficients: coefs,
		CovMatrices:  covs,
		Tau2:         tau2,
		Sigma2:       sigma2,
		Converged:    converged,
		Iterations:   iterations,
	}, nil
}

func (e *sampleSizeEstimator) iterate(y, n []float64, x [][]float64) (tau2, sigma2 float64, iters int, ok bool) {
	k := len(y)

	ones := make([]float64, k)
	for i := range ones {
		ones[i] = 1
	}
	betaOLS, _, err := numerics.SolveWLS(y, ones, x)
	if err != nil {
		return 0, 0, 0, false
	}
	for i, r := range numerics.Residuals(y, betaOLS, x) {
		sigma2 += n[i] * r * r
	}
	sigma2 /= float64(k)
	tau2 = 0

	w := make([]float64, k)
	vh := make([]float64, k)
	for iter := 1; iter <= e.opts.MaxIter; iter++ {
		for i := range w {
			vh[i] = sigma2 / n[i]
			w[i] = 1.0 / (vh[i] + tau2)
		}
		beta, _, err := numerics.SolveWLS(y, w, x)
		if err != nil {
			return tau2, sigma2, iter, false
		}
		r := numerics.Residuals(y, beta, x)

		num, den := 0.0, 0.0
		for i := range w {
			num += w[i] * w[i] * (r[i]*r[i] - vh[i])
			den += w[i] * w[i]
		}
		if e.restricted {
			tr, err := numerics.ProjectionTrace(w, nil, x)
			if err != nil {
				return tau2, sigma2, iter, false
			}
			num += tr
		}
		nextTau := max(TAU2_FLOOR, num/den)

		numS, denS := 0.0, 0.0
		for i := range w {
			numS += (w[i] * w[i] / n[i]) * (r[i]*r[i] - nextTau)
			denS += w[i] * w[i] / (n[i] * n[i])
		}
		if e.restricted {
			inv := make([]float64, k)
			for i := range inv {
				inv[i] = 1.0 / n[i]
			}
			tr, err := numerics.ProjectionTrace(w, inv, x)
			if err != nil {
				return tau2, sigma2, iter, false
			}
			numS += tr
		}
		nextSigma := max(0, numS/denS)

		if math.Abs(nextTau-tau2) < e.opts.Tol && math.Abs(nextSigma-sigma2) < e.opts.Tol {
			return nextTau, nextSigma, iter, true
		}
		tau2, sigma2 = nextTau, nextSigma
	}
	return tau2, sigma2, e.opts.MaxIter, false
}
