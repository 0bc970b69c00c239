package bayes

// bayes_const.go
//
// Centralized tunables for the Metropolis sampler: chain geometry,
// proposal tuning targets, and plot panel dimensions.

import (
	"fmt"
)

// ============================================================================
// 1. CHAIN GEOMETRY
// ============================================================================

const (
	// DEFAULT_DRAWS: Posterior draws kept per chain when the request
	// leaves Draws at zero.
	DEFAULT_DRAWS = 2000

	// DEFAULT_BURN: Warmup draws discarded per chain. Proposal scales are
	// tuned during this window only.
	DEFAULT_BURN = 500

	// DEFAULT_CHAINS: Independent chains pooled into one posterior sample.
	DEFAULT_CHAINS = 2

	// MAX_CHAINS: Upper bound on chain fan-out.
	MAX_CHAINS = 16
)

// ============================================================================
// 2. PROPOSAL TUNING
// ============================================================================

const (
	// TUNE_INTERVAL: Burn-in draws between proposal scale adjustments.
	TUNE_INTERVAL = 50

	// TARGET_ACCEPT_LOW / TARGET_ACCEPT_HIGH: Acceptance-rate band the
	// tuner steers into. Random-walk Metropolis mixes best near 0.44 for
	// one-dimensional updates.
	TARGET_ACCEPT_LOW  = 0.2
	TARGET_ACCEPT_HIGH = 0.5

	// TUNE_GROW / TUNE_SHRINK: Multiplicative scale adjustments applied
	// when acceptance leaves the target band.
	TUNE_GROW   = 1.1
	TUNE_SHRINK = 0.9
)

// ============================================================================
// 3. PLOT PANELS
// ============================================================================

const (
	// PLOT_WIDTH: Character columns in trace strips and forest interval
	// bars.
	PLOT_WIDTH = 60

	// DENSITY_BINS: Histogram bins in density panels.
	DENSITY_BINS = 20

	// DENSITY_BAR_WIDTH: Maximum bar length in density panels.
	DENSITY_BAR_WIDTH = 40
)

// ============================================================================
// UTILITY FUNCTIONS
// ============================================================================

// ValidateConstants performs runtime validation of the sampler tunables.
func ValidateConstants() error {
	if DEFAULT_DRAWS < 1 {
		return fmt.Errorf("DEFAULT_DRAWS must be positive, got %d", DEFAULT_DRAWS)
	}
	if DEFAULT_BURN < 0 {
		return fmt.Errorf("DEFAULT_BURN must be non-negative, got %d", DEFAULT_BURN)
	}
	if DEFAULT_CHAINS < 1 || DEFAULT_CHAINS > MAX_CHAINS {
		return fmt.Errorf("DEFAULT_CHAINS must be in [1, %d], got %d", MAX_CHAINS, DEFAULT_CHAINS)
	}
	if TUNE_INTERVAL < 1 {
		return fmt.Errorf("TUNE_INTERVAL must be positive, got %d", TUNE_INTERVAL)
	}
	if TARGET_ACCEPT_LOW <= 0 || TARGET_ACCEPT_HIGH >= 1 || TARGET_ACCEPT_LOW >= TARGET_ACCEPT_HIGH {
		return fmt.Errorf("acceptance band [%v, %v] is not a valid open interval", TARGET_ACCEPT_LOW, TARGET_ACCEPT_HIGH)
	}
	if TUNE_GROW <= 1 {
		return fmt.Errorf("TUNE_GROW must exceed 1, got %v", TUNE_GROW)
	}
	if TUNE_SHRINK <= 0 || TUNE_SHRINK >= 1 {
		return fmt.Errorf("TUNE_SHRINK must be in (0, 1), got %v", TUNE_SHRINK)
	}
	if PLOT_WIDTH < 10 || DENSITY_BINS < 2 || DENSITY_BAR_WIDTH < 1 {
		return fmt.Errorf("plot dimensions too small: width %d, bins %d, bar %d", PLOT_WIDTH, DENSITY_BINS, DENSITY_BAR_WIDTH)
	}
	return nil
}

// GetAllTunables returns the sampler constants for diagnostics.
func GetAllTunables() map[string]interface{} {
	return map[string]interface{}{
		"DEFAULT_DRAWS":      DEFAULT_DRAWS,
		"DEFAULT_BURN":       DEFAULT_BURN,
		"DEFAULT_CHAINS":     DEFAULT_CHAINS,
		"MAX_CHAINS":         MAX_CHAINS,
		"TUNE_INTERVAL":      TUNE_INTERVAL,
		"TARGET_ACCEPT_LOW":  TARGET_ACCEPT_LOW,
		"TARGET_ACCEPT_HIGH": TARGET_ACCEPT_HIGH,
		"TUNE_GROW":          TUNE_GROW,
		"TUNE_SHRINK":        TUNE_SHRINK,
		"PLOT_WIDTH":         PLOT_WIDTH,
		"DENSITY_BINS":       DENSITY_BINS,
		"DENSITY_BAR_WIDTH":  DENSITY_BAR_WIDTH,
	}
}
