package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goale/adapters/ale"
	"goale/adapters/nifti"
	"goale/adapters/render"
	"goale/adapters/report"
	"goale/adapters/rng"
	"goale/adapters/sleuth"
	"goale/domain/contrast"
	"goale/domain/core"
	"goale/domain/group"
	"goale/domain/run"
	"goale/domain/statmap"
	apperrors "goale/internal/errors"
	"goale/internal/testkit"
	"goale/ports"
)

func visualPlan(t *testing.T, dir string) *contrast.Plan {
	t.Helper()
	visual, err := group.NewDefinition(filepath.Join(dir, "ale", "visual.txt"), `modality_pres == "visual"`)
	require.NoError(t, err)
	nvisual := visual.Negated()

	aleParams := contrast.DefaultALEParams(filepath.Join(dir, "supplement"))
	aleParams.Iterations = 20
	sub := contrast.DefaultSubtractionParams(filepath.Join(dir, "subtraction"))
	sub.Iterations = 50

	plan, err := contrast.NewPlan(testkit.ExperimentTable(20),
		[]group.Definition{visual, nvisual},
		[]contrast.PairSpec{{Minuend: visual.Output, Subtrahend: nvisual.Output}},
		aleParams, sub)
	require.NoError(t, err)
	return plan
}

func visualFigure(dir string) *FigureRequest {
	return &FigureRequest{
		Path: filepath.Join(dir, "figures", "figsupp.svg"),
		VMin: 0,
		VMax: 5,
		Panels: []PanelRequest{
			{Map: "visual_minus_nvisual", Label: "A", Title: "Visual > auditory/audiovisual stimuli"},
		},
	}
}

func newService(backend *testkit.StubBackend, ledger *testkit.InMemoryLedger, workers int) *ContrastService {
	opts := ServiceOptions{Workers: workers, Reports: report.NewWriter()}
	if ledger != nil {
		opts.Ledger = ledger
	}
	return NewContrastService(
		sleuth.NewExporter(nil),
		backend,
		NewFigureService(render.NewRenderer(nil), nifti.NewStore(), nil),
		opts,
	)
}

func TestRunProducesEveryUnit(t *testing.T) {
	dir := t.TempDir()
	ledger := testkit.NewInMemoryLedger()
	backend := testkit.NewStubBackend()
	svc := newService(backend, ledger, 2)

	rep, err := svc.Run(context.Background(), RunRequest{
		Plan:      visualPlan(t, dir),
		RunID:     "run-1",
		Figure:    visualFigure(dir),
		ReportDir: filepath.Join(dir, "report"),
	})
	require.NoError(t, err)
	require.NoError(t, rep.Err())

	assert.Len(t, rep.Outcomes, 6)
	for _, unit := range []struct {
		kind run.UnitKind
		name string
	}{
		{run.UnitExport, "visual"},
		{run.UnitExport, "nvisual"},
		{run.UnitALE, "visual"},
		{run.UnitALE, "nvisual"},
		{run.UnitSubtraction, "visual_minus_nvisual"},
	} {
		o, ok := rep.Outcome(unit.kind, unit.name)
		require.True(t, ok, "%s %s", unit.kind, unit.name)
		assert.Equal(t, run.StatusSucceeded, o.Status)
	}
	assert.Equal(t, []string{"nvisual", "visual", "visual_minus_nvisual"}, backend.Calls())

	for _, f := range []string{
		filepath.Join(dir, "ale", "visual.txt"),
		filepath.Join(dir, "ale", "nvisual.txt"),
		filepath.Join(dir, "figures", "figsupp.svg"),
		filepath.Join(dir, "report", "report.md"),
		filepath.Join(dir, "report", "report.html"),
	} {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}

	recorded, err := ledger.Outcomes(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Len(t, recorded, 6)
	m, err := ledger.Manifest(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, rep.Manifest.Fingerprint, m.Fingerprint)
}

func TestRunExportsSelectedExperiments(t *testing.T) {
	dir := t.TempDir()
	svc := newService(testkit.NewStubBackend(), nil, 1)

	_, err := svc.Run(context.Background(), RunRequest{Plan: visualPlan(t, dir)})
	require.NoError(t, err)

	visual, err := sleuth.NewReader().ReadPeaks(context.Background(), filepath.Join(dir, "ale", "visual.txt"))
	require.NoError(t, err)
	nvisual, err := sleuth.NewReader().ReadPeaks(context.Background(), filepath.Join(dir, "ale", "nvisual.txt"))
	require.NoError(t, err)
	assert.Len(t, visual, len(testkit.VisualIndices))
	assert.Len(t, nvisual, 20-len(testkit.VisualIndices))

	all := testkit.Experiments(20)
	for i, idx := range testkit.VisualIndices {
		assert.Equal(t, all[idx].ID(), visual[i].ID())
	}
}

func TestRunIsolatesBackendFailure(t *testing.T) {
	dir := t.TempDir()
	backend := testkit.NewStubBackend()
	backend.Fail["visual"] = errors.New("numerical failure")
	svc := newService(backend, testkit.NewInMemoryLedger(), 2)

	rep, err := svc.Run(context.Background(), RunRequest{Plan: visualPlan(t, dir), Figure: visualFigure(dir)})
	require.NoError(t, err)
	require.Error(t, rep.Err())
	assert.Equal(t, apperrors.CodeRunFailed, apperrors.GetCode(rep.Err()))

	failed, ok := rep.Outcome(run.UnitALE, "visual")
	require.True(t, ok)
	assert.Equal(t, run.StatusFailed, failed.Status)
	assert.Equal(t, apperrors.CodeBackendError, failed.ErrorCode)
	assert.True(t, core.IsBackendError(failed.Err()))
	assert.Contains(t, failed.Error, "ale visual")

	// siblings and the subtraction, which only needs exports, still run
	for _, unit := range []struct {
		kind run.UnitKind
		name string
	}{
		{run.UnitALE, "nvisual"},
		{run.UnitSubtraction, "visual_minus_nvisual"},
		{run.UnitFigure, filepath.Join(dir, "figures", "figsupp.svg")},
	} {
		o, ok := rep.Outcome(unit.kind, unit.name)
		require.True(t, ok)
		assert.Equal(t, run.StatusSucceeded, o.Status, "%s %s", unit.kind, unit.name)
	}
}

func TestRunSkipsUnitsOfFailedExport(t *testing.T) {
	dir := t.TempDir()
	backend := testkit.NewStubBackend()
	exporter := &testkit.FailingExporter{
		Inner: sleuth.NewExporter(nil),
		Fail:  map[core.GroupName]error{"nvisual": errors.New("disk full")},
	}
	svc := NewContrastService(exporter, backend,
		NewFigureService(render.NewRenderer(nil), nil, nil),
		ServiceOptions{Workers: 2})

	fig := visualFigure(dir)
	rep, err := svc.Run(context.Background(), RunRequest{Plan: visualPlan(t, dir), Figure: fig})
	require.NoError(t, err)

	export, _ := rep.Outcome(run.UnitExport, "nvisual")
	assert.Equal(t, run.StatusFailed, export.Status)
	assert.Equal(t, apperrors.CodeIOError, export.ErrorCode)

	for _, unit := range []struct {
		kind run.UnitKind
		name string
	}{
		{run.UnitALE, "nvisual"},
		{run.UnitSubtraction, "visual_minus_nvisual"},
		{run.UnitFigure, fig.Path},
	} {
		o, ok := rep.Outcome(unit.kind, unit.name)
		require.True(t, ok)
		assert.Equal(t, run.StatusSkipped, o.Status, "%s %s", unit.kind, unit.name)
		assert.Equal(t, apperrors.CodeDependencyFailed, o.ErrorCode)
		assert.ErrorIs(t, o.Err(), core.ErrDependencyFailed)
	}

	visual, _ := rep.Outcome(run.UnitALE, "visual")
	assert.Equal(t, run.StatusSucceeded, visual.Status)
	assert.Equal(t, []string{"visual"}, backend.Calls())
	assert.Len(t, rep.Failed(), 4)
}

func TestRunFailsFastWithoutBackendCalls(t *testing.T) {
	dir := t.TempDir()
	backend := &testkit.MockBackend{}
	svc := NewContrastService(sleuth.NewExporter(nil), backend,
		NewFigureService(render.NewRenderer(nil), nil, nil), ServiceOptions{})

	t.Run("nil plan", func(t *testing.T) {
		_, err := svc.Run(context.Background(), RunRequest{})
		assert.True(t, core.IsConfigError(err))
	})

	t.Run("unknown figure panel", func(t *testing.T) {
		fig := visualFigure(dir)
		fig.Panels[0].Map = "manual_minus_nmanual"
		_, err := svc.Run(context.Background(), RunRequest{Plan: visualPlan(t, dir), Figure: fig})
		assert.ErrorIs(t, err, core.ErrUnregisteredExport)
	})

	t.Run("unregistered pair export", func(t *testing.T) {
		visual, err := group.NewDefinition(filepath.Join(dir, "visual.txt"), `modality_pres == "visual"`)
		require.NoError(t, err)
		_, err = contrast.NewPlan(testkit.ExperimentTable(20), []group.Definition{visual},
			[]contrast.PairSpec{{Minuend: visual.Output, Subtrahend: filepath.Join(dir, "nvisual.txt")}},
			contrast.DefaultALEParams(dir), contrast.DefaultSubtractionParams(dir))
		assert.ErrorIs(t, err, core.ErrUnregisteredExport)
	})

	backend.AssertNotCalled(t, "RunALE", mock.Anything, mock.Anything)
	backend.AssertNotCalled(t, "RunSubtraction", mock.Anything, mock.Anything)
	_, err := os.Stat(filepath.Join(dir, "ale"))
	assert.True(t, os.IsNotExist(err), "nothing exported")
}

func TestRunPassesDerivedSeeds(t *testing.T) {
	dir := t.TempDir()
	backend := &testkit.MockBackend{}
	plan := visualPlan(t, dir)

	backend.On("RunALE", mock.Anything, mock.MatchedBy(func(req ports.ALERequest) bool {
		return req.Seed == UnitSeed(contrast.DefaultSeed, run.UnitALE, req.Name) &&
			req.Iterations == plan.ALE.Iterations &&
			req.OutputDir == plan.ALE.OutputDir
	})).Return(&statmap.Map{Kind: statmap.KindALE}, nil).Twice()
	backend.On("RunSubtraction", mock.Anything, mock.MatchedBy(func(req ports.SubtractionRequest) bool {
		return req.Name == "visual_minus_nvisual" &&
			req.PeaksA == filepath.Join(dir, "ale", "visual.txt") &&
			req.PeaksB == filepath.Join(dir, "ale", "nvisual.txt") &&
			req.Seed == UnitSeed(contrast.DefaultSeed, run.UnitSubtraction, req.Name) &&
			req.ClusterSizeMM3 == contrast.DefaultClusterSizeMM3
	})).Return(&statmap.Map{Kind: statmap.KindSubtraction}, nil).Once()

	svc := NewContrastService(sleuth.NewExporter(nil), backend, nil, ServiceOptions{Workers: 3})
	rep, err := svc.Run(context.Background(), RunRequest{Plan: plan})
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	backend.AssertExpectations(t)

	assert.NotEqual(t,
		UnitSeed(contrast.DefaultSeed, run.UnitALE, "visual"),
		UnitSeed(contrast.DefaultSeed, run.UnitALE, "nvisual"))
}

func TestRunIsIndependentOfWorkerCount(t *testing.T) {
	var seeds [2]map[string]int64
	for i, workers := range []int{1, 4} {
		dir := t.TempDir()
		backend := testkit.NewStubBackend()
		_, err := newService(backend, nil, workers).Run(context.Background(), RunRequest{Plan: visualPlan(t, dir)})
		require.NoError(t, err)

		seeds[i] = map[string]int64{}
		for _, name := range backend.Calls() {
			seeds[i][name], _ = backend.Seed(name)
		}
	}
	assert.Equal(t, seeds[0], seeds[1])
}

func TestRunWithEngine(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the ALE engine")
	}
	dir := t.TempDir()
	cfg := ale.DefaultConfig()
	cfg.VoxelSize = 10
	cfg.Workers = 2
	store := nifti.NewStore()
	engine, err := ale.NewEngine(cfg, sleuth.NewReader(), store, rng.New(), nil)
	require.NoError(t, err)

	svc := NewContrastService(sleuth.NewExporter(nil), engine,
		NewFigureService(render.NewRenderer(nil), store, nil), ServiceOptions{Workers: 2})
	fig := visualFigure(dir)
	rep, err := svc.Run(context.Background(), RunRequest{Plan: visualPlan(t, dir), Figure: fig})
	require.NoError(t, err)
	require.NoError(t, rep.Err())

	sub, ok := rep.Outcome(run.UnitSubtraction, "visual_minus_nvisual")
	require.True(t, ok)
	zPath := sub.Files[statmap.FileZ]
	assert.Equal(t, filepath.Join(dir, "subtraction", "visual_minus_nvisual_z.nii.gz"), zPath)

	z, err := store.ReadMap(context.Background(), zPath)
	require.NoError(t, err)
	assert.Greater(t, z.Max(), 0.0)
	_, err = os.Stat(fig.Path)
	assert.NoError(t, err)
}
