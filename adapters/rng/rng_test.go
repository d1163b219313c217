package rng

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draws(t *testing.T, unit string, iteration int, seed int64) []float64 {
	t.Helper()
	r, err := New().Stream(context.Background(), unit, iteration, seed)
	require.NoError(t, err)
	out := make([]float64, 5)
	for i := range out {
		out[i] = r.Float64()
	}
	return out
}

func TestStream_Deterministic(t *testing.T) {
	assert.Equal(t, draws(t, "visual", 3, 1234), draws(t, "visual", 3, 1234))
}

func TestStream_Distinct(t *testing.T) {
	base := draws(t, "visual", 3, 1234)
	assert.NotEqual(t, base, draws(t, "visual", 4, 1234))
	assert.NotEqual(t, base, draws(t, "nvisual", 3, 1234))
	assert.NotEqual(t, base, draws(t, "visual", 3, 1235))
}

func TestStream_RejectsNegativeIteration(t *testing.T) {
	_, err := New().Stream(context.Background(), "visual", -1, 1)
	assert.Error(t, err)
}

func TestSeededStream_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().SeededStream(ctx, "x", 1)
	assert.ErrorIs(t, err, context.Canceled)
}
