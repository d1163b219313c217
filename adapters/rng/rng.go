package rng

import (
	"context"
	"fmt"
	"math/rand"

	"goale/domain/core"
)

// Adapter implements ports.RNGPort with seeds derived by hashing, so every
// stream depends only on its name and base seed
type Adapter struct{}

// New returns an RNG adapter
func New() *Adapter { return &Adapter{} }

// SeededStream creates a deterministic random number generator for a named operation
func (a *Adapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewSource(core.DeriveSeed(seed, name))), nil
}

// Stream creates the generator for one Monte Carlo iteration of a unit
func (a *Adapter) Stream(ctx context.Context, unit string, iteration int, baseSeed int64) (*rand.Rand, error) {
	if iteration < 0 {
		return nil, fmt.Errorf("rng stream %s: negative iteration %d", unit, iteration)
	}
	return a.SeededStream(ctx, fmt.Sprintf("%s#%d", unit, iteration), baseSeed)
}
