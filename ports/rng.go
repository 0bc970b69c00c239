package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic permutation draws
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// Stream derives an independent deterministic generator for one parallel
	// dataset of an operation. Reruns with the same base seed reproduce
	// identical draws regardless of worker scheduling.
	Stream(ctx context.Context, operation string, dataset int, baseSeed int64) (*rand.Rand, error)
}
