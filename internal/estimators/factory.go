package estimators

import (
	"fmt"
	"strings"

	"gometa/domain/core"
)

// factory.go
// Maps estimator selections by name to configured implementations. All
// selection goes through the closed set below; unknown names are a
// configuration error, never a silent default.

// EstimatorConfig describes one selectable estimator for UI/display.
type EstimatorConfig struct {
	Name        string
	Input       InputKind
	Closed      bool
	Description string
}

// New returns a configured estimator for a selection name. Accepted names
// are case-insensitive and include the common aliases.
func New(name string, opts Options) (Estimator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {

	case "fe", "fixed", "fixed-effect", "wls", "weighted-least-squares":
		return NewFixedEffect(0), nil

	case "dl", "dersimonian-laird", "dersimonianlaird":
		return NewDerSimonianLaird(), nil

	case "he", "hedges":
		return NewHedges(), nil

	case "ml", "maximum-likelihood":
		return NewML(opts), nil

	case "reml", "restricted-maximum-likelihood":
		return NewREML(opts), nil

	case "ssml", "sample-size-ml":
		return NewSampleSizeML(opts), nil

	case "ssreml", "sample-size-reml":
		return NewSampleSizeREML(opts), nil

	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownEstimator, name)
	}
}

// Configs returns every selectable estimator for UI/display.
func Configs() []EstimatorConfig {
	return []EstimatorConfig{
		{
			Name:        "fixed-effect",
			Input:       InputVariance,
			Closed:      true,
			Description: "Single WLS solve with tau2 pinned at 0",
		},
		{
			Name:        "dersimonian-laird",
			Input:       InputVariance,
			Closed:      true,
			Description: "Method-of-moments tau2 from the Q statistic",
		},
		{
			Name:        "hedges",
			Input:       InputVariance,
			Closed:      true,
			Description: "Residual mean square minus mean sampling variance",
		},
		{
			Name:        "ml",
			Input:       InputVariance,
			Closed:      false,
			Description: fmt.Sprintf("Likelihood fixed point (tol=%g, max %d iters)", ESTIMATOR_TOL, ESTIMATOR_MAX_ITER),
		},
		{
			Name:        "reml",
			Input:       InputVariance,
			Closed:      false,
			Description: fmt.Sprintf("Restricted likelihood fixed point (tol=%g, max %d iters)", ESTIMATOR_TOL, ESTIMATOR_MAX_ITER),
		},
		{
			Name:        "sample-size-ml",
			Input:       InputSampleSize,
			Closed:      false,
			Description: "Joint (tau2, sigma2) likelihood fit from sample sizes",
		},
		{
			Name:        "sample-size-reml",
			Input:       InputSampleSize,
			Closed:      false,
			Description: "Restricted joint (tau2, sigma2) fit from sample sizes",
		},
	}
}
