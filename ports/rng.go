package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// Stream creates the RNG for one Monte Carlo iteration of one unit, so a
	// null distribution never depends on how iterations were scheduled
	Stream(ctx context.Context, unit string, iteration int, baseSeed int64) (*rand.Rand, error)
}
