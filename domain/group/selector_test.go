package group_test

import (
	"fmt"
	"math/rand"
	"testing"

	"goale/domain/core"
	"goale/domain/experiment"
	"goale/domain/group"
	"goale/domain/predicate"
	"goale/internal/testkit"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDef(t *testing.T, output, expr string) group.Definition {
	t.Helper()
	def, err := group.NewDefinition(output, expr)
	require.NoError(t, err)
	return def
}

func TestSelect_VisualScenario(t *testing.T) {
	table := testkit.ExperimentTable(20)
	def := mustDef(t, "results/ale/visual.txt", `modality_pres == "visual"`)

	visual, err := group.Select(table, def)
	require.NoError(t, err)
	require.Equal(t, 8, visual.Len())

	want := make([]core.ExperimentID, 0, len(testkit.VisualIndices))
	for _, i := range testkit.VisualIndices {
		want = append(want, table.At(i).ID())
	}
	if diff := cmp.Diff(want, visual.IDs()); diff != "" {
		t.Errorf("visual group mismatch (-want +got):\n%s", diff)
	}

	nvisual, err := group.Complement(table, def)
	require.NoError(t, err)
	assert.Equal(t, 12, nvisual.Len())
	assert.Equal(t, core.GroupName("nvisual"), nvisual.Name())
	assert.Equal(t, "results/ale/nvisual.txt", nvisual.Definition.Output)
}

func TestSelect_PartitionProperty(t *testing.T) {
	table := testkit.ExperimentTable(20)
	exprs := []string{
		`modality_pres == "visual"`,
		`modality_resp == "manual"`,
		`software == "SPM"`,
		`software in ["SPM", "FSL"] and modality_resp != "none"`,
		`not (modality_pres == "auditory" or software == "AFNI")`,
		`software == "BrainVoyager"`,
	}

	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			def := mustDef(t, "out/g.txt", expr)
			in, err := group.Select(table, def)
			require.NoError(t, err)
			out, err := group.Complement(table, def)
			require.NoError(t, err)

			assert.True(t, group.Partitions(table, in, out))
			assert.Equal(t, table.Len(), in.Len()+out.Len())

			splitIn, splitOut, err := group.Split(table, def)
			require.NoError(t, err)
			assert.Equal(t, in.IDs(), splitIn.IDs())
			assert.Equal(t, out.IDs(), splitOut.IDs())
		})
	}
}

func TestSelect_PartitionProperty_RandomTables(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	levels := []string{"a", "b", "c"}
	for trial := 0; trial < 50; trial++ {
		n := rng.Intn(30)
		exps := make([]experiment.Experiment, n)
		for i := range exps {
			fields := map[string]string{"f": levels[rng.Intn(3)]}
			if rng.Intn(4) > 0 {
				fields["g"] = levels[rng.Intn(3)]
			}
			exps[i] = experiment.New(core.ExperimentID(fmt.Sprintf("r%d", i)), fields, 10, nil)
		}
		table, err := experiment.NewTable(exps, "f", "g")
		require.NoError(t, err)

		def := group.Definition{Name: "r", Output: "r.txt", Predicate: predicate.Or{Terms: []predicate.Predicate{
			predicate.FieldEquals{Field: "f", Value: levels[rng.Intn(3)]},
			predicate.FieldNotEquals{Field: "g", Value: levels[rng.Intn(3)]},
		}}}
		in, err := group.Select(table, def)
		require.NoError(t, err)
		out, err := group.Complement(table, def)
		require.NoError(t, err)
		require.True(t, group.Partitions(table, in, out), "trial %d", trial)
	}
}

func TestSelect_Deterministic(t *testing.T) {
	table := testkit.ExperimentTable(20)
	def := mustDef(t, "spm.txt", `software == "SPM"`)

	first, err := group.Select(table, def)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := group.Select(table, def)
		require.NoError(t, err)
		require.Equal(t, first.IDs(), again.IDs())
	}
}

func TestSelect_EmptyGroupIsNotAnError(t *testing.T) {
	table := testkit.ExperimentTable(20)
	g, err := group.Select(table, mustDef(t, "none.txt", `software == "BrainVoyager"`))
	require.NoError(t, err)
	assert.True(t, g.IsEmpty())
	assert.NotNil(t, g.Experiments)
}

func TestSelect_UnknownFieldFailsFast(t *testing.T) {
	exps := []experiment.Experiment{
		experiment.New("a", map[string]string{"modality_pres": "visual"}, 10, nil),
	}
	table, err := experiment.NewTable(exps)
	require.NoError(t, err)

	def := mustDef(t, "spm.txt", `software == "SPM"`)
	_, err = group.Select(table, def)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownField)

	_, err = group.Complement(table, def)
	assert.ErrorIs(t, err, core.ErrUnknownField)
}

func TestSameMembers(t *testing.T) {
	table := testkit.ExperimentTable(20)
	a, err := group.Select(table, mustDef(t, "a.txt", `modality_pres == "visual"`))
	require.NoError(t, err)
	b, err := group.Select(table, mustDef(t, "b.txt", `not (modality_pres != "visual")`))
	require.NoError(t, err)
	c, err := group.Select(table, mustDef(t, "c.txt", `software == "SPM"`))
	require.NoError(t, err)

	assert.True(t, group.SameMembers(a, b))
	assert.False(t, group.SameMembers(a, c))
}

func TestNameFromPath(t *testing.T) {
	assert.Equal(t, core.GroupName("visual"), group.NameFromPath("../results/ale/visual.txt"))
	assert.Equal(t, core.GroupName("spm"), group.NameFromPath("spm"))
}
