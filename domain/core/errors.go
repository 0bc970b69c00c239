package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrAnalysisNotFound = fmt.Errorf("%w: analysis", ErrNotFound)
	ErrDatasetNotFound  = fmt.Errorf("%w: dataset", ErrNotFound)
	ErrReportNotFound   = fmt.Errorf("%w: report", ErrNotFound)

	// Validation errors
	ErrInvalidDataset   = errors.New("invalid dataset")
	ErrShapeMismatch    = errors.New("array shape mismatch")
	ErrInsufficientData = errors.New("insufficient data for analysis")

	// Method selection errors
	ErrUnknownEstimator  = errors.New("unknown estimator")
	ErrUnsupportedMethod = errors.New("unsupported method")

	// Numerical errors
	ErrSingularMatrix   = errors.New("singular weighted design matrix")
	ErrNotConverged     = errors.New("iterative fit did not converge")
	ErrBracketExhausted = errors.New("profile bracket search exhausted")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: validation failed for %s: %s", ErrInvalidDataset, field, reason)
}

// NewInsufficientDataError names the missing input so callers can tell
// whether sampling variances or sample sizes were expected.
func NewInsufficientDataError(field string) error {
	return fmt.Errorf("%w: %s is required but was not provided", ErrInsufficientData, field)
}

func NewShapeError(field string, want, got int) error {
	return fmt.Errorf("%w: %s has %d rows, expected %d", ErrShapeMismatch, field, got, want)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidDataset) ||
		errors.Is(err, ErrShapeMismatch) ||
		errors.Is(err, ErrInsufficientData)
}

func IsNumericalError(err error) bool {
	return errors.Is(err, ErrSingularMatrix) ||
		errors.Is(err, ErrNotConverged) ||
		errors.Is(err, ErrBracketExhausted)
}
