package ports

import "context"

// PlotKind enumerates the posterior visualizations a sampler can render.
// Unknown kinds are a compile-time impossibility for callers using the
// constants; adapters must still reject out-of-range values.
type PlotKind int

const (
	PlotTrace PlotKind = iota
	PlotDensity
	PlotForest
)

func (k PlotKind) String() string {
	switch k {
	case PlotTrace:
		return "trace"
	case PlotDensity:
		return "density"
	case PlotForest:
		return "forest"
	default:
		return "unknown"
	}
}

// SampleRequest carries one dataset into the posterior sampler. Multi-column
// inputs are not supported; callers sample one dataset at a time.
type SampleRequest struct {
	Y      []float64
	V      []float64
	X      [][]float64
	Groups []int // study -> random-effect group; empty gives each study its own
	Names  []string
	Draws  int   // posterior draws per chain; adapter default when 0
	Burn   int   // warmup draws discarded per chain; adapter default when 0
	Chains int   // independent chains; adapter default when 0
	Seed   int64 // deterministic draws when non-zero
}

// PosteriorStat summarizes one sampled parameter.
type PosteriorStat struct {
	Name    string  `json:"name"`
	Mean    float64 `json:"mean"`
	Median  float64 `json:"median"`
	SD      float64 `json:"sd"`
	CILower float64 `json:"ci_lower"` // central 95% credible bound
	CIUpper float64 `json:"ci_upper"`
}

// PosteriorSummary exposes read-only views over a finished sampling run
type PosteriorSummary interface {
	// Summary returns stats for the named parameters, or all when none given
	Summary(vars ...string) ([]PosteriorStat, error)

	// Plot renders a text panel of the requested kind
	Plot(kind PlotKind) (string, error)
}

// PosteriorSampler draws from the posterior of the random-effects model
type PosteriorSampler interface {
	Sample(ctx context.Context, req SampleRequest) (PosteriorSummary, error)
}
