package app

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"gometa/domain/core"
	"gometa/domain/meta"
	"gometa/internal/config"
	"gometa/internal/errors"
	"gometa/internal/estimators"
	"gometa/internal/results"
	"gometa/ports"
)

// Weighted fit budget shared by one sweep. Q-profile passes hold more of
// the budget because the CI bisection dominates runtime.
const (
	SWEEP_CAPACITY = 8
	FIT_WEIGHT     = 1
	PROFILE_WEIGHT = 4
)

// SweepService fits a family of estimators against shared inputs and
// collects the outcomes into one comparison artifact. Fits run concurrently
// under a weighted semaphore; a failing estimator lands in its row instead
// of aborting the sweep.
type SweepService struct {
	datasets ports.DatasetRepository // nil disables stored-dataset inputs
	reader   ports.TableReader       // nil disables file inputs
	sem      *semaphore.Weighted
	cfg      config.AnalysisConfig
}

// SweepRequest runs every named estimator against one data source. An empty
// Estimators list sweeps the family the dataset supports.
type SweepRequest struct {
	DataSource

	Estimators []string `json:"estimators,omitempty"`
	Alpha      float64  `json:"alpha,omitempty"`
	Tau2CI     bool     `json:"tau2_ci,omitempty"` // profile tau2 wherever variances allow
	SweepID    core.ID  `json:"sweep_id,omitempty"`
}

// DatasetSweepRequest runs one estimator against several stored datasets
type DatasetSweepRequest struct {
	Estimator  string   `json:"estimator"`
	DatasetIDs []string `json:"dataset_ids"`
	Alpha      float64  `json:"alpha,omitempty"`
	Tau2CI     bool     `json:"tau2_ci,omitempty"`
	SweepID    core.ID  `json:"sweep_id,omitempty"`
}

// SweepRow is one estimator/dataset outcome within a sweep
type SweepRow struct {
	Estimator  string               `json:"estimator"`
	DatasetID  core.DatasetID       `json:"dataset_id,omitempty"`
	Dataset    string               `json:"dataset,omitempty"` // stored name when swept by ID
	Converged  bool                 `json:"converged"`
	Iterations int                  `json:"iterations,omitempty"`
	Tau2       []float64            `json:"tau2,omitempty"`
	Table      []meta.TableRow      `json:"table,omitempty"`
	Het        []meta.Heterogeneity `json:"heterogeneity,omitempty"`
	Tau2CI     *meta.REStats        `json:"tau2_ci,omitempty"`
	Err        string               `json:"error,omitempty"`
}

// SweepResult contains the complete output of a sweep
type SweepResult struct {
	SweepID   core.ID    `json:"sweep_id"`
	Rows      []SweepRow `json:"rows"`
	RuntimeMs int64      `json:"runtime_ms"`
	Success   bool       `json:"success"`
}

// NewSweepService creates a sweep service with a shared weighted fit budget
func NewSweepService(datasets ports.DatasetRepository, reader ports.TableReader, cfg config.AnalysisConfig) *SweepService {
	return &SweepService{
		datasets: datasets,
		reader:   reader,
		sem:      semaphore.NewWeighted(SWEEP_CAPACITY),
		cfg:      cfg,
	}
}

// RunSweep fits every requested estimator against one dataset. Rows come
// back in request order regardless of completion order.
func (s *SweepService) RunSweep(ctx context.Context, req SweepRequest) (*SweepResult, error) {
	startTime := time.Now()

	sweepID := req.SweepID
	if sweepID == "" {
		sweepID = core.NewID()
	}

	ds, datasetID, err := resolveDataset(ctx, req.DataSource, s.datasets, s.reader)
	if err != nil {
		return nil, err
	}

	alpha := req.Alpha
	if alpha == 0 {
		alpha = s.cfg.DefaultAlpha
	}

	names := req.Estimators
	if len(names) == 0 {
		names = familyFor(ds)
	}
	if len(names) == 0 {
		return nil, core.NewInsufficientDataError("v")
	}

	rows := make([]SweepRow, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			rows[i] = s.fitOne(ctx, name, ds, alpha, req.Tau2CI)
			rows[i].DatasetID = datasetID
		}(i, name)
	}
	wg.Wait()

	return &SweepResult{
		SweepID:   sweepID,
		Rows:      rows,
		RuntimeMs: time.Since(startTime).Milliseconds(),
		Success:   allClean(rows),
	}, nil
}

// RunDatasetSweep fits one estimator against every named stored dataset
func (s *SweepService) RunDatasetSweep(ctx context.Context, req DatasetSweepRequest) (*SweepResult, error) {
	startTime := time.Now()

	sweepID := req.SweepID
	if sweepID == "" {
		sweepID = core.NewID()
	}
	if s.datasets == nil {
		return nil, errors.DependencyMissing("dataset repository", nil)
	}
	if len(req.DatasetIDs) == 0 {
		return nil, core.NewValidationError("dataset_ids", "at least one stored dataset is required")
	}

	alpha := req.Alpha
	if alpha == 0 {
		alpha = s.cfg.DefaultAlpha
	}

	rows := make([]SweepRow, len(req.DatasetIDs))
	var wg sync.WaitGroup
	for i, rawID := range req.DatasetIDs {
		wg.Add(1)
		go func(i int, rawID string) {
			defer wg.Done()
			rows[i] = s.fitStored(ctx, req.Estimator, rawID, alpha, req.Tau2CI)
		}(i, rawID)
	}
	wg.Wait()

	return &SweepResult{
		SweepID:   sweepID,
		Rows:      rows,
		RuntimeMs: time.Since(startTime).Milliseconds(),
		Success:   allClean(rows),
	}, nil
}

// fitStored resolves one stored dataset and runs the estimator against it
func (s *SweepService) fitStored(ctx context.Context, estimator, rawID string, alpha float64, wantCI bool) SweepRow {
	id, err := core.ParseDatasetID(rawID)
	if err != nil {
		return SweepRow{Estimator: estimator, Err: err.Error()}
	}
	stored, err := s.datasets.GetByID(ctx, id)
	if err != nil {
		return SweepRow{Estimator: estimator, DatasetID: id, Err: err.Error()}
	}

	row := s.fitOne(ctx, estimator, stored.Dataset, alpha, wantCI)
	row.DatasetID = stored.ID
	row.Dataset = stored.Name
	return row
}

// fitOne runs a single estimator end to end and flattens the outcome into a
// comparison row. The semaphore weight reflects the work: profiling tau2
// costs several plain fits.
func (s *SweepService) fitOne(ctx context.Context, name string, ds *meta.Dataset, alpha float64, wantCI bool) SweepRow {
	row := SweepRow{Estimator: name}

	profile := wantCI && ds.HasV()
	weight := int64(FIT_WEIGHT)
	if profile {
		weight = PROFILE_WEIGHT
	}
	if err := s.sem.Acquire(ctx, weight); err != nil {
		row.Err = err.Error()
		return row
	}
	defer s.sem.Release(weight)

	est, err := estimators.New(name, estimators.Options{
		Tol:     s.cfg.Tolerance,
		MaxIter: s.cfg.MaxIterations,
	})
	if err != nil {
		row.Err = err.Error()
		return row
	}
	row.Estimator = est.Name()

	estimate, err := est.Fit(ds)
	if err != nil {
		row.Err = err.Error()
		return row
	}
	row.Converged = estimate.Converged
	row.Iterations = estimate.Iterations
	row.Tau2 = estimate.Tau2

	res, err := results.New(est, ds, estimate)
	if err != nil {
		row.Err = err.Error()
		return row
	}

	if ds.NDatasets() == 1 {
		table, err := res.Table(alpha)
		if err != nil {
			row.Err = err.Error()
			return row
		}
		row.Table = table
	}
	if ds.HasV() {
		het, err := res.Heterogeneity()
		if err != nil {
			row.Err = err.Error()
			return row
		}
		row.Het = het
	}
	if profile && len(estimate.Tau2) > 0 {
		ci, err := res.REStats("Q-Profile", alpha)
		if err != nil {
			row.Err = err.Error()
			return row
		}
		row.Tau2CI = ci
	}
	return row
}

// familyFor returns the estimators a dataset can support: the variance
// family when v is present, the sample-size family when n is.
func familyFor(ds *meta.Dataset) []string {
	var names []string
	if ds.HasV() {
		names = append(names, "fixed-effect", "dersimonian-laird", "hedges", "ml", "reml")
	}
	if ds.HasN() {
		names = append(names, "ssml", "ssreml")
	}
	return names
}

func allClean(rows []SweepRow) bool {
	for _, row := range rows {
		if row.Err != "" {
			return false
		}
	}
	return true
}
