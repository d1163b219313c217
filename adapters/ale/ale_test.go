package ale

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goale/adapters/nifti"
	"goale/adapters/rng"
	"goale/domain/core"
	"goale/domain/experiment"
	"goale/domain/statmap"
	"goale/internal/testkit"
	"goale/ports"
)

// memPeaks serves peak files from memory
type memPeaks map[string][]experiment.Experiment

func (m memPeaks) ReadPeaks(ctx context.Context, path string) ([]experiment.Experiment, error) {
	exps, ok := m[path]
	if !ok {
		return nil, core.NewIOError("open", path, os.ErrNotExist)
	}
	return exps, nil
}

func fixturePeaks() memPeaks {
	visual := map[int]bool{}
	for _, i := range testkit.VisualIndices {
		visual[i] = true
	}
	m := memPeaks{}
	for i, exp := range testkit.Experiments(20) {
		key := "nvisual.txt"
		if visual[i] {
			key = "visual.txt"
		}
		m[key] = append(m[key], exp)
	}
	return m
}

func newTestEngine(t *testing.T, peaks memPeaks, workers int) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.VoxelSize = 10
	cfg.Workers = workers
	e, err := NewEngine(cfg, peaks, nifti.NewStore(), rng.New(), nil)
	require.NoError(t, err)
	return e
}

func aleRequest(t *testing.T, path string, seed int64) ports.ALERequest {
	return ports.ALERequest{
		Name:          "visual",
		PeaksPath:     path,
		VoxelThresh:   0.001,
		ClusterThresh: 0.05,
		Seed:          seed,
		Iterations:    30,
		OutputDir:     t.TempDir(),
	}
}

func zAt(t *testing.T, m *statmap.Map, x, y, z float64) float64 {
	t.Helper()
	i, j, k, ok := m.Grid().FromMNI(x, y, z)
	require.True(t, ok)
	return m.Z.At(i, j, k)
}

func TestKernelFWHM_ShrinksWithSampleSize(t *testing.T) {
	assert.Greater(t, KernelFWHM(8), KernelFWHM(30))
	assert.Greater(t, KernelFWHM(1000), templateUncertainty)
	assert.InDelta(t, 9.24, KernelFWHM(20), 0.05)
}

func TestKernel_Normalized(t *testing.T) {
	k := newKernel(20, 4)
	sum := 0.0
	for _, w := range k.weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestNullSurvival_Monotone(t *testing.T) {
	e := newTestEngine(t, fixturePeaks(), 1)
	exps, _ := fixturePeaks().ReadPeaks(context.Background(), "visual.txt")
	var mas []sparse
	for _, fs := range e.prepare(exps) {
		mas = append(mas, e.modeledActivation(fs, fs.foci))
	}
	sf := nullSurvival(mas, e.Grid().Len())

	assert.InDelta(t, 1.0, sf[0], 1e-9)
	for b := 1; b < len(sf); b++ {
		require.LessOrEqual(t, sf[b], sf[b-1]+1e-12, "bin %d", b)
	}
}

func TestRunALE_VisualScenario(t *testing.T) {
	e := newTestEngine(t, fixturePeaks(), 4)
	m, err := e.RunALE(context.Background(), aleRequest(t, "visual.txt", 1234))
	require.NoError(t, err)

	assert.Equal(t, statmap.KindALE, m.Kind)
	assert.Equal(t, 8, m.Experiments)
	assert.Greater(t, zAt(t, m, -44, -58, -14), m.VoxelZ)
	for _, role := range []string{statmap.FileZ, statmap.FileZThresh, statmap.FileALE, statmap.FileClusterCSV} {
		path, ok := m.File(role)
		require.True(t, ok, role)
		assert.FileExists(t, path)
	}
}

func TestRunALE_Reproducible(t *testing.T) {
	peaks := fixturePeaks()
	first, err := newTestEngine(t, peaks, 1).RunALE(context.Background(), aleRequest(t, "visual.txt", 1234))
	require.NoError(t, err)
	second, err := newTestEngine(t, peaks, 8).RunALE(context.Background(), aleRequest(t, "visual.txt", 1234))
	require.NoError(t, err)

	assert.Equal(t, first.Z.Data, second.Z.Data)
	assert.Equal(t, first.Thresholded.Data, second.Thresholded.Data)
	assert.Equal(t, first.ClusterThreshold, second.ClusterThreshold)
	assert.Equal(t, first.Clusters, second.Clusters)
}

func TestNullDraws_DependOnSeed(t *testing.T) {
	e := newTestEngine(t, fixturePeaks(), 1)
	exps, _ := fixturePeaks().ReadPeaks(context.Background(), "visual.txt")
	sets := e.prepare(exps)
	var mas []sparse
	for _, fs := range sets {
		mas = append(mas, e.modeledActivation(fs, fs.foci))
	}
	sf := nullSurvival(mas, e.Grid().Len())

	sizes := func(seed int64) []int {
		req := aleRequest(t, "visual.txt", seed)
		out := make([]int, 20)
		for i := range out {
			n, err := e.nullMaxCluster(context.Background(), req, sets, sf, i)
			require.NoError(t, err)
			out[i] = n
		}
		return out
	}
	assert.Equal(t, sizes(1234), sizes(1234))
	assert.NotEqual(t, sizes(1234), sizes(4321))
}

func TestRunALE_DegenerateInput(t *testing.T) {
	single := testkit.Experiments(1)
	outside := experiment.New("far", nil, 10, []experiment.Peak{{X: 500, Y: 500, Z: 500}})
	peaks := memPeaks{
		"empty.txt":   nil,
		"outside.txt": {outside},
		"single.txt":  single,
	}
	e := newTestEngine(t, peaks, 2)

	cases := map[string]error{
		"empty.txt":   core.ErrEmptyGroup,
		"outside.txt": core.ErrEmptyGroup,
		"single.txt":  core.ErrTooFewExperiments,
	}
	for path, want := range cases {
		t.Run(path, func(t *testing.T) {
			_, err := e.RunALE(context.Background(), aleRequest(t, path, 1234))
			require.Error(t, err)
			assert.ErrorIs(t, err, want)
			assert.True(t, core.IsDegenerateError(err))
		})
	}
}

func TestRunALE_InvalidRequest(t *testing.T) {
	e := newTestEngine(t, fixturePeaks(), 1)
	req := aleRequest(t, "visual.txt", 1)
	req.Iterations = 0
	_, err := e.RunALE(context.Background(), req)
	assert.True(t, core.IsConfigError(err))
}

func TestRunALE_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestEngine(t, fixturePeaks(), 2).RunALE(ctx, aleRequest(t, "visual.txt", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, core.IsBackendError(err))
}

func subtractionRequest(t *testing.T, a, b string) ports.SubtractionRequest {
	return ports.SubtractionRequest{
		Name:           fmt.Sprintf("%s_minus_%s", a, b),
		PeaksA:         a + ".txt",
		PeaksB:         b + ".txt",
		VoxelThresh:    0.001,
		ClusterSizeMM3: 200,
		Seed:           1234,
		Iterations:     30,
		OutputDir:      t.TempDir(),
	}
}

func TestRunSubtraction_Signed(t *testing.T) {
	e := newTestEngine(t, fixturePeaks(), 4)
	m, err := e.RunSubtraction(context.Background(), subtractionRequest(t, "visual", "nvisual"))
	require.NoError(t, err)

	assert.Equal(t, statmap.KindSubtraction, m.Kind)
	assert.Equal(t, 20, m.Experiments)
	assert.Greater(t, zAt(t, m, -44, -58, -14), 0.0)

	reversed, err := e.RunSubtraction(context.Background(), subtractionRequest(t, "nvisual", "visual"))
	require.NoError(t, err)
	assert.Less(t, zAt(t, reversed, -44, -58, -14), 0.0)

	path, ok := m.File(statmap.FileZ)
	require.True(t, ok)
	assert.FileExists(t, path)
}

func TestRunSubtraction_Reproducible(t *testing.T) {
	peaks := fixturePeaks()
	a, err := newTestEngine(t, peaks, 1).RunSubtraction(context.Background(), subtractionRequest(t, "visual", "nvisual"))
	require.NoError(t, err)
	b, err := newTestEngine(t, peaks, 6).RunSubtraction(context.Background(), subtractionRequest(t, "visual", "nvisual"))
	require.NoError(t, err)
	assert.Equal(t, a.Z.Data, b.Z.Data)
}

func TestRunSubtraction_Degenerate(t *testing.T) {
	peaks := fixturePeaks()
	peaks["empty.txt"] = nil
	peaks["copy.txt"] = peaks["visual.txt"]
	e := newTestEngine(t, peaks, 2)

	_, err := e.RunSubtraction(context.Background(), subtractionRequest(t, "visual", "empty"))
	assert.ErrorIs(t, err, core.ErrEmptyGroup)

	_, err = e.RunSubtraction(context.Background(), subtractionRequest(t, "visual", "copy"))
	assert.ErrorIs(t, err, core.ErrIdenticalGroups)

	_, err = e.RunSubtraction(context.Background(), subtractionRequest(t, "visual", "missing"))
	assert.True(t, core.IsIOError(err))
}
