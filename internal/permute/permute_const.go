package permute

// permute_const.go
//
// Centralized tunables for the permutation engine: default draw counts,
// worker fan-out across parallel datasets, and the enumeration limits that
// keep exact universes inside int64.

import (
	"fmt"
)

// ============================================================================
// 1. DRAW COUNTS AND SEEDING
// ============================================================================

const (
	// DEFAULT_PERMUTATIONS: Monte Carlo draw count used when callers pass
	// no explicit number.
	DEFAULT_PERMUTATIONS = 1000

	// DEFAULT_SEED: Base seed for permutation streams. Per-dataset streams
	// are derived from it so reruns reproduce bit-identical p-values.
	DEFAULT_SEED = 42
)

// ============================================================================
// 2. CONCURRENCY
// ============================================================================

const (
	// DEFAULT_WORKERS: Parallel datasets refit concurrently. Each dataset
	// is one vectorized batch, so a handful of workers saturates the gain.
	DEFAULT_WORKERS = 4

	// MAX_WORKERS: Upper bound on the worker fan-out.
	MAX_WORKERS = 32
)

// ============================================================================
// 3. EXACT ENUMERATION LIMITS
// ============================================================================

const (
	// MAX_EXACT_ORDER_STUDIES: Largest study count whose factorial fits in
	// int64. Beyond it the label-permutation universe is treated as
	// unbounded and sampling falls back to Monte Carlo.
	MAX_EXACT_ORDER_STUDIES = 20

	// MAX_EXACT_SIGN_STUDIES: Largest study count whose 2^k sign-pattern
	// universe fits in int64.
	MAX_EXACT_SIGN_STUDIES = 62
)

// ============================================================================
// UTILITY FUNCTIONS
// ============================================================================

// ValidateConstants performs runtime validation of the permutation tunables.
func ValidateConstants() error {
	if DEFAULT_PERMUTATIONS < 1 {
		return fmt.Errorf("DEFAULT_PERMUTATIONS too low: %d < 1", DEFAULT_PERMUTATIONS)
	}
	if DEFAULT_WORKERS < 1 || DEFAULT_WORKERS > MAX_WORKERS {
		return fmt.Errorf("DEFAULT_WORKERS out of range: %d not in [1,%d]", DEFAULT_WORKERS, MAX_WORKERS)
	}
	if MAX_EXACT_ORDER_STUDIES > 20 {
		return fmt.Errorf("MAX_EXACT_ORDER_STUDIES too high: %d! overflows int64", MAX_EXACT_ORDER_STUDIES+1)
	}
	if MAX_EXACT_SIGN_STUDIES > 62 {
		return fmt.Errorf("MAX_EXACT_SIGN_STUDIES too high: 2^%d overflows int64", MAX_EXACT_SIGN_STUDIES+1)
	}
	return nil
}

// GetAllTunables returns the tunables for logging and diagnostics.
func GetAllTunables() map[string]int64 {
	return map[string]int64{
		"DEFAULT_PERMUTATIONS":    DEFAULT_PERMUTATIONS,
		"DEFAULT_SEED":            DEFAULT_SEED,
		"DEFAULT_WORKERS":         DEFAULT_WORKERS,
		"MAX_WORKERS":             MAX_WORKERS,
		"MAX_EXACT_ORDER_STUDIES": MAX_EXACT_ORDER_STUDIES,
		"MAX_EXACT_SIGN_STUDIES":  MAX_EXACT_SIGN_STUDIES,
	}
}
