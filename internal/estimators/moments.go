package estimators

import (
	"fmt"

	"gometa/domain/core"
	"gometa/domain/meta"
	"gometa/internal/numerics"
)

// DerSimonianLaird is the classic method-of-moments heterogeneity estimator:
// tau2 solves the Q moment equation at tau2=0, then one WLS pass reweights
// by 1/(v+tau2). Fully vectorized across parallel datasets.
type DerSimonianLaird struct{}

func NewDerSimonianLaird() *DerSimonianLaird { return &DerSimonianLaird{} }

func (e *DerSimonianLaird) Name() string     { return "dersimonian-laird" }
func (e *DerSimonianLaird) Input() InputKind { return InputVariance }
func (e *DerSimonianLaird) Closed() bool     { return true }

func (e *DerSimonianLaird) Fit(ds *meta.Dataset) (*meta.Estimate, error) {
	v, err := resolveVariance(ds)
	if err != nil {
		return nil, err
	}
	if err := checkResidualDF(ds); err != nil {
		return nil, err
	}

	k := ds.NStudies()
	p := ds.NPredictors()
	m := ds.NDatasets()

	w1 := reciprocal(v, nil)
	coefs1, _, err := numerics.SolveWLSBatch(ds.Y, w1, ds.X)
	if err != nil {
		return nil, err
	}

	tau2 := make([]float64, m)
	for j := 0; j < m; j++ {
		wCol := columnOf(w1, j)
		beta := make([]float64, p)
		for i := range beta {
			beta[i] = coefs1[i][j]
		}
		q := 0.0
		for i, r := range numerics.Residuals(ds.YColumn(j), beta, ds.X) {
			q += wCol[i] * r * r
		}
		tr, err := numerics.ProjectionTrace(wCol, nil, ds.X)
		if err != nil {
			return nil, err
		}
		wSum := 0.0
		for _, wi := range wCol {
			wSum += wi
		}
		tau2[j] = max(TAU2_FLOOR, (q-float64(k-p))/(wSum-tr))
	}

	coefs, covs, err := numerics.SolveWLSBatch(ds.Y, reciprocal(v, tau2), ds.X)
	if err != nil {
		return nil, err
	}
	return &meta.Estimate{
		Coefficients: coefs,
		CovMatrices:  covs,
		Tau2:         tau2,
		Converged:    true,
	}, nil
}

// Hedges estimates tau2 as the unweighted residual mean square minus the
// average sampling variance, floored at zero, then reweights. Vectorized
// across parallel datasets.
type Hedges struct{}

func NewHedges() *Hedges { return &Hedges{} }

func (e *Hedges) Name() string     { return "hedges" }
func (e *Hedges) Input() InputKind { return InputVariance }
func (e *Hedges) Closed() bool     { return true }

func (e *Hedges) Fit(ds *meta.Dataset) (*meta.Estimate, error) {
	v, err := resolveVariance(ds)
	if err != nil {
		return nil, err
	}
	if err := checkResidualDF(ds); err != nil {
		return nil, err
	}

	k := ds.NStudies()
	p := ds.NPredictors()
	m := ds.NDatasets()

	ones := make([][]float64, k)
	for i := range ones {
		ones[i] = make([]float64, m)
		for j := range ones[i] {
			ones[i][j] = 1
		}
	}
	coefsOLS, _, err := numerics.SolveWLSBatch(ds.Y, ones, ds.X)
	if err != nil {
		return nil, err
	}

	tau2 := make([]float64, m)
	for j := 0; j < m; j++ {
		beta := make([]float64, p)
		for i := range beta {
			beta[i] = coefsOLS[i][j]
		}
		rss := 0.0
		for _, r := range numerics.Residuals(ds.YColumn(j), beta, ds.X) {
			rss += r * r
		}
		mse := rss / float64(k-p)
		vMean := 0.0
		for _, vi := range ds.VColumn(j) {
			vMean += vi
		}
		vMean /= float64(k)
		tau2[j] = max(TAU2_FLOOR, mse-vMean)
	}

	coefs, covs, err := numerics.SolveWLSBatch(ds.Y, reciprocal(v, tau2), ds.X)
	if err != nil {
		return nil, err
	}
	return &meta.Estimate{
		Coefficients: coefs,
		CovMatrices:  covs,
		Tau2:         tau2,
		Converged:    true,
	}, nil
}

func checkResidualDF(ds *meta.Dataset) error {
	if ds.NStudies()-ds.NPredictors() < MIN_STUDIES_OVER_PREDICTORS {
		return core.NewValidationError("dataset",
			fmt.Sprintf("%d studies cannot support %d predictors", ds.NStudies(), ds.NPredictors()))
	}
	return nil
}
