package results

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"gometa/domain/core"
	"gometa/domain/meta"
	"gometa/internal"
	"gometa/internal/numerics"
)

// Q-profile confidence intervals run serially per dataset. Calls that
// profile more than this many parallel datasets log a warning.
const PROFILE_WARN_DATASETS = 10

// Fitter is the slice of the estimator surface the container needs:
// labeling output, gating permutation tests, and refitting shuffled data.
type Fitter interface {
	Name() string
	Closed() bool
	Fit(ds *meta.Dataset) (*meta.Estimate, error)
}

// Results bundles a fitted estimate with the dataset and estimator that
// produced it. The raw estimate is immutable; derived statistics are
// computed on demand and memoized in explicit caches keyed by the call
// parameters.
//
// INVARIANTS:
// - Estimate shapes agree with Dataset shapes (validated on construction)
// - a cache entry, once written, is never recomputed or mutated
// - repeated calls with equal parameters return the identical pointer
type Results struct {
	Estimator Fitter
	Dataset   *meta.Dataset
	Estimate  *meta.Estimate

	mu      sync.Mutex
	feStats map[float64]*meta.FEStats
	reStats map[reKey]*meta.REStats
	het     []meta.Heterogeneity
	logger  *internal.Logger
}

type reKey struct {
	method string
	alpha  float64
}

// New validates shape agreement and wraps the triple into a container.
func New(estimator Fitter, ds *meta.Dataset, est *meta.Estimate) (*Results, error) {
	if estimator == nil || ds == nil || est == nil {
		return nil, core.NewValidationError("results", "estimator, dataset, and estimate are all required")
	}
	if est.NPredictors() != ds.NPredictors() {
		return nil, core.NewShapeError("coefficients", ds.NPredictors(), est.NPredictors())
	}
	if est.NDatasets() != ds.NDatasets() {
		return nil, core.NewShapeError("coefficient columns", ds.NDatasets(), est.NDatasets())
	}
	return &Results{
		Estimator: estimator,
		Dataset:   ds,
		Estimate:  est,
		feStats:   make(map[float64]*meta.FEStats),
		reStats:   make(map[reKey]*meta.REStats),
		logger:    internal.DefaultLogger,
	}, nil
}

// FEStats derives standard errors, z-scores, two-sided normal p-values,
// and Wald confidence intervals at the given alpha. The first call per
// alpha computes; later calls return the cached pointer.
func (r *Results) FEStats(alpha float64) (*meta.FEStats, error) {
	if alpha <= 0 || alpha >= 1 {
		return nil, core.NewValidationError("alpha", fmt.Sprintf("must be in (0, 1), got %v", alpha))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.feStats[alpha]; ok {
		return cached, nil
	}

	p := r.Estimate.NPredictors()
	m := r.Estimate.NDatasets()
	stats := &meta.FEStats{
		SE:      newMatrix(p, m),
		Z:       newMatrix(p, m),
		P:       newMatrix(p, m),
		CILower: newMatrix(p, m),
		CIUpper: newMatrix(p, m),
		Alpha:   alpha,
	}

	crit := distuv.UnitNormal.Quantile(1 - alpha/2)
	for j := 0; j < m; j++ {
		for i := 0; i < p; i++ {
			beta := r.Estimate.Coefficients[i][j]
			se := math.Sqrt(r.Estimate.CovMatrices[j][i][i])
			z := beta / se
			stats.SE[i][j] = se
			stats.Z[i][j] = z
			stats.P[i][j] = 1 - math.Abs(0.5-distuv.UnitNormal.CDF(z))*2
			stats.CILower[i][j] = beta - crit*se
			stats.CIUpper[i][j] = beta + crit*se
		}
	}

	r.feStats[alpha] = stats
	return stats, nil
}

// REStats derives a confidence interval for tau-squared. Q-Profile is the
// only supported method; requesting any other name is a configuration
// error. Each parallel dataset is profiled independently.
func (r *Results) REStats(method string, alpha float64) (*meta.REStats, error) {
	if !strings.EqualFold(method, "Q-Profile") {
		return nil, fmt.Errorf("%w: %q is not a supported tau2 CI method (use Q-Profile)", core.ErrUnsupportedMethod, method)
	}
	if !r.Dataset.HasV() {
		return nil, core.NewInsufficientDataError("v")
	}
	if len(r.Estimate.Tau2) == 0 {
		return nil, core.NewValidationError("tau2", "estimate carries no between-study variance")
	}

	key := reKey{method: "q-profile", alpha: alpha}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.reStats[key]; ok {
		return cached, nil
	}

	m := r.Dataset.NDatasets()
	if m > PROFILE_WARN_DATASETS {
		r.logger.Warn("Profiling tau2 for %d parallel datasets serially; this may be slow", m)
	}

	stats := &meta.REStats{
		Tau2:    append([]float64(nil), r.Estimate.Tau2...),
		CILower: make([]float64, m),
		CIUpper: make([]float64, m),
		Alpha:   alpha,
		Method:  "Q-Profile",
	}
	for j := 0; j < m; j++ {
		profile, err := numerics.QProfileCI(r.Dataset.YColumn(j), r.Dataset.VColumn(j), r.Dataset.X, alpha)
		if err != nil {
			return nil, fmt.Errorf("dataset %d: %w", j, err)
		}
		stats.CILower[j] = profile.Lower
		stats.CIUpper[j] = profile.Upper
	}

	r.reStats[key] = stats
	return stats, nil
}

// Heterogeneity reports Q, I2, H2, and the chi-square p-value per parallel
// dataset, computed once and cached.
func (r *Results) Heterogeneity() ([]meta.Heterogeneity, error) {
	if !r.Dataset.HasV() {
		return nil, core.NewInsufficientDataError("v")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.het != nil {
		return r.het, nil
	}

	df := r.Dataset.NStudies() - r.Dataset.NPredictors()
	het := make([]meta.Heterogeneity, r.Dataset.NDatasets())
	for j := range het {
		q, err := numerics.QStatistic(r.Dataset.YColumn(j), r.Dataset.VColumn(j), r.Dataset.X, 0)
		if err != nil {
			return nil, fmt.Errorf("dataset %d: %w", j, err)
		}
		i2, h2, pval := numerics.HeterogeneityStats(q, df)
		het[j] = meta.Heterogeneity{Q: q, DF: df, I2: i2, H2: h2, PValue: pval}
	}

	r.het = het
	return het, nil
}

// Table flattens the fixed-effect statistics into one row per predictor.
// Only single-dataset results can be flattened; parallel datasets would
// make the row structure ambiguous.
func (r *Results) Table(alpha float64) ([]meta.TableRow, error) {
	if m := r.Estimate.NDatasets(); m != 1 {
		return nil, fmt.Errorf("%w: flat table requires a single dataset, got %d parallel datasets", core.ErrShapeMismatch, m)
	}
	stats, err := r.FEStats(alpha)
	if err != nil {
		return nil, err
	}

	rows := make([]meta.TableRow, r.Estimate.NPredictors())
	for i := range rows {
		rows[i] = meta.TableRow{
			Name:     r.Dataset.Names[i],
			Estimate: r.Estimate.Coefficients[i][0],
			SE:       stats.SE[i][0],
			Z:        stats.Z[i][0],
			P:        stats.P[i][0],
			CILower:  stats.CILower[i][0],
			CIUpper:  stats.CIUpper[i][0],
		}
	}
	return rows, nil
}

func newMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}
