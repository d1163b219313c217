package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goale/domain/contrast"
	"goale/domain/core"
	"goale/internal/errors"
	"goale/internal/testkit"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GOALE_WORKERS", "")
	t.Setenv("GOALE_LEDGER_DSN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cfg.Backend.Workers, 1)
	assert.Equal(t, 4.0, cfg.Backend.VoxelSize)
	assert.Equal(t, 2, cfg.Backend.MinExperiments)
	assert.Equal(t, 20, cfg.Backend.DefaultSubjects)
	assert.Equal(t, "results/ledger.db", cfg.Ledger.DSN)
	assert.True(t, cfg.Ledger.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GOALE_WORKERS", "3")
	t.Setenv("GOALE_VOXEL_SIZE", "2")
	t.Setenv("GOALE_LEDGER_DSN", "none")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Backend.Workers)
	assert.Equal(t, 2.0, cfg.Backend.VoxelSize)
	assert.False(t, cfg.Ledger.Enabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("GOALE_WORKERS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestParsePlanKeepsGroupOrder(t *testing.T) {
	raw := []byte(`
table: exps.json
groups:
  out/visual.txt: 'modality_pres == "visual"'
  out/nvisual.txt: 'modality_pres != "visual"'
  out/spm.txt: 'software == "SPM"'
pairs:
  - minuend: out/visual.txt
    subtrahend: out/nvisual.txt
ale:
  iterations: 50
`)
	p, err := ParsePlan(raw)
	require.NoError(t, err)

	require.Len(t, p.Groups, 3)
	assert.Equal(t, "out/visual.txt", p.Groups[0].Output)
	assert.Equal(t, "out/nvisual.txt", p.Groups[1].Output)
	assert.Equal(t, "out/spm.txt", p.Groups[2].Output)
	assert.Equal(t, `software == "SPM"`, p.Groups[2].Predicate)

	// unset parameters keep their defaults
	assert.Equal(t, 50, p.ALE.Iterations)
	assert.Equal(t, contrast.DefaultVoxelThresh, p.ALE.VoxelThresh)
	assert.Equal(t, contrast.DefaultSubtractionIterations, p.Subtraction.Iterations)
	assert.Equal(t, float64(DefaultVMax), p.Figure.VMax)
}

func TestParsePlanRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown key", "table: a.json\ngroups:\n  a.txt: 'x == \"1\"'\nextra: 1\n"},
		{"groups as list", "groups:\n  - a.txt\n"},
		{"no groups", "table: a.json\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, core.IsConfigError(err))
		})
	}
}

func TestLoadPlanMissingFile(t *testing.T) {
	_, err := LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, core.IsIOError(err))
}

func TestWritePlanRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans", "plan.yaml")
	want := DefaultPlan()
	require.NoError(t, WritePlan(want, path))

	_, err := os.Stat(path)
	require.NoError(t, err)

	got, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDefaultPlanBuilds(t *testing.T) {
	table := testkit.ExperimentTable(20)

	plan, err := DefaultPlan().Build(table)
	require.NoError(t, err)

	groups := plan.Groups()
	require.Len(t, groups, 6)
	assert.Equal(t, core.GroupName("visual"), groups[0].Name())
	assert.Equal(t, len(testkit.VisualIndices), groups[0].Len())
	assert.Equal(t, table.Len()-len(testkit.VisualIndices), groups[1].Len())

	pairs := plan.Pairs()
	require.Len(t, pairs, 3)
	assert.Equal(t, core.PairName("visual_minus_nvisual"), pairs[0].Name)
	assert.Equal(t, core.PairName("spm_minus_nspm"), pairs[2].Name)
	for _, p := range pairs {
		assert.Equal(t, "n"+p.Minuend, p.Subtrahend, "pair %s", p.Name)
	}
	assert.Equal(t, core.GroupName("visual"), pairs[0].Minuend)
	assert.Equal(t, core.GroupName("manual"), pairs[1].Minuend)

	again, err := DefaultPlan().Build(table)
	require.NoError(t, err)
	assert.Equal(t, plan.Hash(), again.Hash())
}

func TestBuildRejectsUnknownField(t *testing.T) {
	p := DefaultPlan()
	p.Groups = append(p.Groups, GroupEntry{Output: "results/ale/task.txt", Predicate: `task == "reading"`})

	_, err := p.Build(testkit.ExperimentTable(20))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownField)
}

func TestBuildRejectsMalformedPredicate(t *testing.T) {
	p := DefaultPlan()
	p.Groups[0].Predicate = `modality_pres ==`

	_, err := p.Build(testkit.ExperimentTable(20))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMalformedPredicate)
}
