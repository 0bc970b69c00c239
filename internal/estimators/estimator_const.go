package estimators

// estimator_const.go
//
// Centralized tunables for the estimator family. These values set the
// convergence behavior of the iterative variance-component fits and the
// guard rails on estimator inputs.

import (
	"fmt"
)

// ============================================================================
// 1. ITERATIVE FITS (ML / REML / sample-size likelihood)
// ============================================================================

const (
	// ESTIMATOR_TOL: Absolute convergence tolerance on successive tau2
	// (and sigma2) iterates. The fixed-point updates contract quickly near
	// the optimum; 1e-5 keeps reference fixtures reproducible to 1e-4.
	ESTIMATOR_TOL = 1e-5

	// ESTIMATOR_MAX_ITER: Iteration cap for the likelihood fixed points.
	// Hitting the cap is not an error: the best iterate is returned with
	// the converged flag cleared.
	ESTIMATOR_MAX_ITER = 100
)

// ============================================================================
// 2. CLOSED-FORM MOMENTS (DerSimonian-Laird / Hedges)
// ============================================================================

const (
	// TAU2_FLOOR: Lower bound applied to every heterogeneity estimate.
	// Moment equations can go negative on homogeneous data; the variance
	// component itself cannot.
	TAU2_FLOOR = 0.0

	// MIN_STUDIES_OVER_PREDICTORS: Required excess of studies over design
	// columns. Zero residual degrees of freedom make Q and the moment
	// denominators meaningless.
	MIN_STUDIES_OVER_PREDICTORS = 1
)

// ============================================================================
// UTILITY FUNCTIONS
// ============================================================================

// ValidateConstants performs runtime validation of the estimator tunables.
// Called once at service construction.
func ValidateConstants() error {
	if ESTIMATOR_TOL <= 0 || ESTIMATOR_TOL >= 1 {
		return fmt.Errorf("ESTIMATOR_TOL out of range: %g not in (0,1)", ESTIMATOR_TOL)
	}
	if ESTIMATOR_MAX_ITER < 10 {
		return fmt.Errorf("ESTIMATOR_MAX_ITER too low: %d < 10", ESTIMATOR_MAX_ITER)
	}
	if TAU2_FLOOR != 0 {
		return fmt.Errorf("TAU2_FLOOR must be 0, got %g", TAU2_FLOOR)
	}
	if MIN_STUDIES_OVER_PREDICTORS < 1 {
		return fmt.Errorf("MIN_STUDIES_OVER_PREDICTORS too low: %d < 1", MIN_STUDIES_OVER_PREDICTORS)
	}
	return nil
}

// GetAllTunables returns the tunables for logging and the estimators API.
func GetAllTunables() map[string]float64 {
	return map[string]float64{
		"ESTIMATOR_TOL":      ESTIMATOR_TOL,
		"ESTIMATOR_MAX_ITER": ESTIMATOR_MAX_ITER,
		"TAU2_FLOOR":         TAU2_FLOOR,
	}
}
