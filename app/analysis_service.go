package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gometa/domain/core"
	"gometa/domain/meta"
	"gometa/internal/config"
	"gometa/internal/errors"
	"gometa/internal/estimators"
	"gometa/internal/permute"
	"gometa/internal/results"
	"gometa/ports"
)

// AnalysisService orchestrates one meta-regression run end to end: dataset
// resolution, estimator fit, derived statistics, optional permutation test,
// and persistence when a repository is wired.
type AnalysisService struct {
	analyses ports.AnalysisRepository // nil skips persistence
	datasets ports.DatasetRepository  // nil disables stored-dataset inputs
	reader   ports.TableReader        // nil disables file inputs
	sampler  ports.PosteriorSampler   // nil disables posterior sampling
	rngPort  ports.RNGPort
	cfg      config.AnalysisConfig
}

// DataSource names where the working dataset comes from. Exactly one source
// is used, checked in order: stored dataset ID, tabular file, inline arrays.
type DataSource struct {
	DatasetID string               `json:"dataset_id,omitempty"`
	File      string               `json:"file,omitempty"`
	Mapping   *ports.ColumnMapping `json:"mapping,omitempty"` // required with File

	Y           []float64   `json:"y,omitempty"`
	V           []float64   `json:"v,omitempty"`
	N           []float64   `json:"n,omitempty"`
	X           [][]float64 `json:"x,omitempty"` // moderator rows, one per study
	Names       []string    `json:"names,omitempty"`
	NoIntercept bool        `json:"no_intercept,omitempty"` // inline designs get an intercept unless opted out
}

// AnalysisRequest defines the inputs for one estimator run
type AnalysisRequest struct {
	DataSource

	Estimator string  `json:"estimator"`
	Alpha     float64 `json:"alpha,omitempty"`   // config default when 0
	Tau2CI    bool    `json:"tau2_ci,omitempty"` // Q-Profile interval for tau2
	NPerm     int     `json:"n_perm,omitempty"`  // permutation draws; 0 skips the test
	Seed      int64   `json:"seed,omitempty"`    // config default when 0
}

// AnalysisResponse contains the complete output of one estimator run
type AnalysisResponse struct {
	AnalysisID core.AnalysisID      `json:"analysis_id"`
	DatasetID  core.DatasetID       `json:"dataset_id,omitempty"`
	Estimator  string               `json:"estimator"`
	Alpha      float64              `json:"alpha"`
	Estimate   *meta.Estimate       `json:"estimate"`
	Table      []meta.TableRow      `json:"table,omitempty"` // flat view; single-column runs only
	Het        []meta.Heterogeneity `json:"heterogeneity,omitempty"`
	Tau2CI     *meta.REStats        `json:"tau2_ci,omitempty"`
	NPermUsed  int                  `json:"n_perm_used,omitempty"`
	Exact      bool                 `json:"exact_permutation,omitempty"`
	Persisted  bool                 `json:"persisted"`
	RuntimeMs  int64                `json:"runtime_ms"`
}

// NewAnalysisService wires an analysis service. Repositories, reader, and
// sampler are optional; passing nil disables that feature at call time.
// Tunable constants are validated here so misconfiguration fails at startup
// rather than mid-analysis.
func NewAnalysisService(
	analyses ports.AnalysisRepository,
	datasets ports.DatasetRepository,
	reader ports.TableReader,
	sampler ports.PosteriorSampler,
	rngPort ports.RNGPort,
	cfg config.AnalysisConfig,
) (*AnalysisService, error) {
	if rngPort == nil {
		return nil, errors.DependencyMissing("rng port", nil)
	}
	if err := estimators.ValidateConstants(); err != nil {
		return nil, errors.Wrap(err, "estimator constants failed validation")
	}
	if err := permute.ValidateConstants(); err != nil {
		return nil, errors.Wrap(err, "permutation constants failed validation")
	}

	return &AnalysisService{
		analyses: analyses,
		datasets: datasets,
		reader:   reader,
		sampler:  sampler,
		rngPort:  rngPort,
		cfg:      cfg,
	}, nil
}

// RunAnalysis executes the full pipeline for one estimator: fit, derived
// statistics at the requested alpha, optional tau2 CI and permutation test,
// and a stored AnalysisRecord when a repository is wired.
func (s *AnalysisService) RunAnalysis(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	startTime := time.Now()

	ds, datasetID, err := resolveDataset(ctx, req.DataSource, s.datasets, s.reader)
	if err != nil {
		return nil, err
	}

	alpha := req.Alpha
	if alpha == 0 {
		alpha = s.cfg.DefaultAlpha
	}

	est, err := estimators.New(req.Estimator, estimators.Options{
		Tol:     s.cfg.Tolerance,
		MaxIter: s.cfg.MaxIterations,
	})
	if err != nil {
		return nil, err
	}

	estimate, err := est.Fit(ds)
	if err != nil {
		return nil, fmt.Errorf("%s fit failed: %w", est.Name(), err)
	}

	res, err := results.New(est, ds, estimate)
	if err != nil {
		return nil, err
	}
	if _, err := res.FEStats(alpha); err != nil {
		return nil, err
	}

	resp := &AnalysisResponse{
		AnalysisID: core.AnalysisID(core.NewID()),
		DatasetID:  datasetID,
		Estimator:  est.Name(),
		Alpha:      alpha,
		Estimate:   estimate,
	}

	if ds.HasV() {
		het, err := res.Heterogeneity()
		if err != nil {
			return nil, fmt.Errorf("heterogeneity statistics failed: %w", err)
		}
		resp.Het = het
	}

	if req.Tau2CI {
		ci, err := res.REStats("Q-Profile", alpha)
		if err != nil {
			return nil, fmt.Errorf("tau2 confidence interval failed: %w", err)
		}
		resp.Tau2CI = ci
	}

	// The flat table is only defined for a single outcome column.
	if ds.NDatasets() == 1 {
		table, err := res.Table(alpha)
		if err != nil {
			return nil, err
		}
		resp.Table = table
	}

	if req.NPerm > 0 {
		perm, err := s.runPermutation(ctx, res, req.NPerm, req.Seed)
		if err != nil {
			return nil, fmt.Errorf("permutation test failed: %w", err)
		}
		resp.NPermUsed = perm.NPermUsed
		resp.Exact = perm.Exact
		if ds.NDatasets() == 1 {
			table, err := perm.Table(alpha)
			if err != nil {
				return nil, err
			}
			resp.Table = table
		}
	}

	if s.analyses != nil {
		rec := &meta.AnalysisRecord{
			ID:        resp.AnalysisID,
			DatasetID: datasetID,
			Estimator: est.Name(),
			Alpha:     alpha,
			Estimate:  estimate,
			Table:     resp.Table,
			Tau2CI:    resp.Tau2CI,
			CreatedAt: core.Now(),
		}
		if err := s.analyses.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to store analysis record: %w", err)
		}
		resp.Persisted = true
	}

	resp.RuntimeMs = time.Since(startTime).Milliseconds()
	return resp, nil
}

// GetAnalysis loads one persisted analysis record
func (s *AnalysisService) GetAnalysis(ctx context.Context, id core.AnalysisID) (*meta.AnalysisRecord, error) {
	if s.analyses == nil {
		return nil, errors.DependencyMissing("analysis repository", nil)
	}
	return s.analyses.GetByID(ctx, id)
}

// ListAnalyses returns the most recently persisted records, newest first
func (s *AnalysisService) ListAnalyses(ctx context.Context, limit int) ([]*meta.AnalysisRecord, error) {
	if s.analyses == nil {
		return nil, errors.DependencyMissing("analysis repository", nil)
	}
	return s.analyses.ListRecent(ctx, limit)
}

// GetDataset loads one stored dataset
func (s *AnalysisService) GetDataset(ctx context.Context, id core.DatasetID) (*meta.StoredDataset, error) {
	if s.datasets == nil {
		return nil, errors.DependencyMissing("dataset repository", nil)
	}
	return s.datasets.GetByID(ctx, id)
}

// ImportDataset reads a tabular file and persists it as a named dataset.
func (s *AnalysisService) ImportDataset(ctx context.Context, name, path string, mapping ports.ColumnMapping) (*meta.StoredDataset, error) {
	if s.reader == nil {
		return nil, errors.DependencyMissing("table reader", nil)
	}
	if s.datasets == nil {
		return nil, errors.DependencyMissing("dataset repository", nil)
	}
	if strings.TrimSpace(name) == "" {
		return nil, core.NewValidationError("name", "dataset name is required")
	}

	ds, err := s.reader.Read(ctx, path, mapping)
	if err != nil {
		return nil, err
	}

	stored := &meta.StoredDataset{
		ID:          core.DatasetID(core.NewID()),
		Name:        name,
		Source:      path,
		Fingerprint: ds.Fingerprint(),
		Dataset:     ds,
		CreatedAt:   core.Now(),
	}
	if err := s.datasets.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("failed to store dataset: %w", err)
	}
	return stored, nil
}

func (s *AnalysisService) runPermutation(ctx context.Context, res *results.Results, nPerm int, seed int64) (*results.PermutationResults, error) {
	if seed == 0 {
		seed = s.cfg.Seed
	}
	engine := permute.NewEngine(s.rngPort)
	engine.SetWorkers(s.cfg.PermWorkers)
	engine.SetSeed(seed)
	return engine.Run(ctx, res, nPerm)
}

// resolveDataset builds the working dataset from whichever source the
// request names. Shared by the analysis and sweep services.
func resolveDataset(ctx context.Context, src DataSource, datasets ports.DatasetRepository, reader ports.TableReader) (*meta.Dataset, core.DatasetID, error) {
	switch {
	case src.DatasetID != "":
		if datasets == nil {
			return nil, "", errors.DependencyMissing("dataset repository", nil)
		}
		id, err := core.ParseDatasetID(src.DatasetID)
		if err != nil {
			return nil, "", core.NewValidationError("dataset_id", err.Error())
		}
		stored, err := datasets.GetByID(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return stored.Dataset, stored.ID, nil

	case src.File != "":
		if reader == nil {
			return nil, "", errors.DependencyMissing("table reader", nil)
		}
		if src.Mapping == nil {
			return nil, "", core.NewValidationError("mapping", "file inputs need a column mapping")
		}
		ds, err := reader.Read(ctx, src.File, *src.Mapping)
		if err != nil {
			return nil, "", err
		}
		return ds, "", nil

	case len(src.Y) > 0:
		ds, err := meta.FromColumns(src.Y, src.V, src.N, src.X, src.Names, !src.NoIntercept)
		if err != nil {
			return nil, "", err
		}
		return ds, "", nil

	default:
		return nil, "", core.NewValidationError("dataset", "request names no data source (dataset_id, file, or inline y)")
	}
}
