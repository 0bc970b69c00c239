package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gometa/domain/core"
	"gometa/internal/errors"
	"gometa/ports"
)

// BayesRequest asks for posterior sampling of a single-column dataset
type BayesRequest struct {
	DataSource

	Groups []int    `json:"groups,omitempty"` // study -> group; empty gives each study its own
	Draws  int      `json:"draws,omitempty"`  // sampler default when 0
	Burn   int      `json:"burn,omitempty"`   // sampler default when 0
	Chains int      `json:"chains,omitempty"` // sampler default when 0
	Seed   int64    `json:"seed,omitempty"`   // config default when 0
	Plots  []string `json:"plots,omitempty"`  // trace, density, forest
}

// BayesResponse carries the posterior summaries and any rendered panels
type BayesResponse struct {
	Stats     []ports.PosteriorStat `json:"stats"`
	Plots     map[string]string     `json:"plots,omitempty"`
	RuntimeMs int64                 `json:"runtime_ms"`
}

// RunBayes samples the posterior of the random-effects model for one
// dataset. The feature requires a configured sampler; without one the call
// fails with a dependency error and nothing else is touched.
func (s *AnalysisService) RunBayes(ctx context.Context, req BayesRequest) (*BayesResponse, error) {
	if s.sampler == nil {
		return nil, errors.DependencyMissing("posterior sampler", nil)
	}
	startTime := time.Now()

	ds, _, err := resolveDataset(ctx, req.DataSource, s.datasets, s.reader)
	if err != nil {
		return nil, err
	}
	if m := ds.NDatasets(); m != 1 {
		return nil, core.NewValidationError("dataset", fmt.Sprintf("posterior sampling handles one dataset at a time, got %d", m))
	}
	if !ds.HasV() {
		return nil, core.NewInsufficientDataError("v")
	}

	seed := req.Seed
	if seed == 0 {
		seed = s.cfg.Seed
	}

	summary, err := s.sampler.Sample(ctx, ports.SampleRequest{
		Y:      ds.YColumn(0),
		V:      ds.VColumn(0),
		X:      ds.X,
		Groups: req.Groups,
		Names:  ds.Names,
		Draws:  req.Draws,
		Burn:   req.Burn,
		Chains: req.Chains,
		Seed:   seed,
	})
	if err != nil {
		return nil, fmt.Errorf("posterior sampling failed: %w", err)
	}

	stats, err := summary.Summary()
	if err != nil {
		return nil, fmt.Errorf("posterior summary failed: %w", err)
	}

	resp := &BayesResponse{Stats: stats}
	if len(req.Plots) > 0 {
		resp.Plots = make(map[string]string, len(req.Plots))
		for _, name := range req.Plots {
			kind, err := plotKindByName(name)
			if err != nil {
				return nil, err
			}
			panel, err := summary.Plot(kind)
			if err != nil {
				return nil, fmt.Errorf("%s plot failed: %w", name, err)
			}
			resp.Plots[name] = panel
		}
	}

	resp.RuntimeMs = time.Since(startTime).Milliseconds()
	return resp, nil
}

func plotKindByName(name string) (ports.PlotKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return ports.PlotTrace, nil
	case "density":
		return ports.PlotDensity, nil
	case "forest":
		return ports.PlotForest, nil
	default:
		return 0, core.NewValidationError("plot", fmt.Sprintf("unknown plot kind %q (use trace, density, or forest)", name))
	}
}
