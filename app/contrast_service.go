package app

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"goale/domain/contrast"
	"goale/domain/core"
	"goale/domain/group"
	"goale/domain/run"
	"goale/domain/statmap"
	"goale/internal"
	"goale/ports"
)

// ContrastService drives a contrast plan end to end: export every group,
// run ALE per group and a subtraction per pair, draw the figure and record
// what happened
type ContrastService struct {
	exporter    ports.PeakExporter
	backend     ports.Backend
	figures     *FigureService
	ledger      ports.LedgerWriterPort
	reports     ports.ReportWriter
	workers     int
	codeVersion string
	log         *internal.Logger
}

// ServiceOptions tune a ContrastService. Zero values pick defaults.
type ServiceOptions struct {
	Workers     int
	CodeVersion string
	Ledger      ports.LedgerWriterPort
	Reports     ports.ReportWriter
	Logger      *internal.Logger
}

// RunRequest is one execution of a plan
type RunRequest struct {
	Plan      *contrast.Plan
	RunID     core.RunID     // generated when empty
	Figure    *FigureRequest // nil skips the figure
	ReportDir string         // empty skips the report files
}

// NewContrastService wires the pipeline. figures may be nil when no run
// draws a figure.
func NewContrastService(exporter ports.PeakExporter, backend ports.Backend, figures *FigureService, opts ServiceOptions) *ContrastService {
	if opts.Workers < 1 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.CodeVersion == "" {
		opts.CodeVersion = "dev"
	}
	if opts.Logger == nil {
		opts.Logger = internal.NewNopLogger()
	}
	return &ContrastService{
		exporter:    exporter,
		backend:     backend,
		figures:     figures,
		ledger:      opts.Ledger,
		reports:     opts.Reports,
		workers:     opts.Workers,
		codeVersion: opts.CodeVersion,
		log:         opts.Logger.Named("contrast"),
	}
}

// unitResult collects the outcomes of concurrently running units
type unitResult struct {
	mu       sync.Mutex
	report   *run.Report
	maps     map[string]*statmap.Map
	failures map[string]bool
}

func (u *unitResult) add(o run.Outcome, m *statmap.Map) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.report.Add(o)
	if m != nil {
		u.maps[o.Unit] = m
	}
	if o.Status != run.StatusSucceeded {
		u.failures[o.Unit] = true
	}
}

// Run executes the plan. Unit failures do not abort the run: they are
// logged, recorded and listed in the returned report, whose Err is non-nil
// when any unit did not succeed. The returned error is reserved for
// problems that prevent the run from starting.
func (s *ContrastService) Run(ctx context.Context, req RunRequest) (*run.Report, error) {
	plan := req.Plan
	if plan == nil {
		return nil, core.NewConfigError(core.ErrConfiguration, "no contrast plan")
	}
	if req.Figure != nil {
		if s.figures == nil {
			return nil, core.NewConfigError(core.ErrConfiguration, "figure requested but no renderer configured")
		}
		if err := validatePanels(plan, *req.Figure); err != nil {
			return nil, err
		}
	}

	runID := req.RunID
	if runID == "" {
		runID = core.NewRunID()
	}
	manifest := run.NewManifest(runID, plan.Table().Hash(), plan.Hash(), plan.ALE.Seed, s.codeVersion)
	if s.ledger != nil {
		if err := s.ledger.RecordManifest(ctx, manifest); err != nil {
			return nil, err
		}
	}

	log := s.log.With("run_id", runID.String())
	log.Info("run started", "groups", len(plan.Groups()), "pairs", len(plan.Pairs()), "workers", s.workers)
	started := time.Now()

	res := &unitResult{
		report:   &run.Report{Manifest: manifest},
		maps:     make(map[string]*statmap.Map),
		failures: make(map[string]bool),
	}

	exported := s.exportAll(ctx, plan, res, log)
	s.analyze(ctx, plan, exported, res, log)
	if req.Figure != nil {
		s.drawFigure(ctx, *req.Figure, res, log)
	}

	report := res.report
	report.Sort()
	s.record(ctx, runID, report, log)

	if req.ReportDir != "" && s.reports != nil {
		files, err := s.reports.WriteReport(ctx, report, req.ReportDir)
		if err != nil {
			log.Warn("report not written", "dir", req.ReportDir, "error", err)
		} else {
			log.Debug("report written", "files", files)
		}
	}

	log.Info("run finished",
		"succeeded", len(report.Succeeded()),
		"failed", len(report.Failed()),
		"duration", time.Since(started).Round(time.Millisecond))
	return report, nil
}

// Export writes every group of the plan without running any analysis
func (s *ContrastService) Export(ctx context.Context, plan *contrast.Plan) (*run.Report, error) {
	if plan == nil {
		return nil, core.NewConfigError(core.ErrConfiguration, "no contrast plan")
	}
	res := &unitResult{
		report:   &run.Report{},
		maps:     make(map[string]*statmap.Map),
		failures: make(map[string]bool),
	}
	s.exportAll(ctx, plan, res, s.log)
	res.report.Sort()
	return res.report, nil
}

// exportAll writes groups one after another and returns the export path of
// each group that was written
func (s *ContrastService) exportAll(ctx context.Context, plan *contrast.Plan, res *unitResult, log *internal.Logger) map[core.GroupName]string {
	exported := make(map[core.GroupName]string)
	for _, g := range plan.Groups() {
		path, _ := plan.ExportPath(g.Name())
		start := time.Now()
		if err := s.exporter.Export(ctx, g, path); err != nil {
			err = unitError(run.UnitExport, g.Name().String(), err)
			log.Error("export failed", "group", g.Name(), "path", path, "error", err)
			res.add(run.Failed(run.UnitExport, g.Name().String(), err, time.Since(start)), nil)
			continue
		}
		if g.IsEmpty() {
			log.Warn("exported empty group", "group", g.Name(), "path", path)
		}
		exported[g.Name()] = path
		res.add(run.Succeeded(run.UnitExport, g.Name().String(), map[string]string{"peaks": path}, time.Since(start)), nil)
	}
	return exported
}

// analyze runs every ALE and subtraction on one bounded pool. Subtractions
// read exports only, so they never wait on ALE units.
func (s *ContrastService) analyze(ctx context.Context, plan *contrast.Plan, exported map[core.GroupName]string, res *unitResult, log *internal.Logger) {
	var g errgroup.Group
	g.SetLimit(s.workers)

	for _, grp := range plan.Groups() {
		path, ok := exported[grp.Name()]
		if !ok {
			err := unitError(run.UnitALE, grp.Name().String(),
				fmt.Errorf("%w: export of %s failed", core.ErrDependencyFailed, grp.Name()))
			res.add(run.Failed(run.UnitALE, grp.Name().String(), err, 0), nil)
			continue
		}
		g.Go(func() error {
			s.runALE(ctx, plan.ALE, grp, path, res, log)
			return nil
		})
	}

	for _, pair := range plan.Pairs() {
		if missing := missingExports(pair, exported); len(missing) > 0 {
			err := unitError(run.UnitSubtraction, string(pair.Name),
				fmt.Errorf("%w: export of %v failed", core.ErrDependencyFailed, missing))
			log.Warn("subtraction skipped", "pair", pair.Name, "error", err)
			res.add(run.Failed(run.UnitSubtraction, string(pair.Name), err, 0), nil)
			continue
		}
		g.Go(func() error {
			s.runSubtraction(ctx, plan.Subtraction, pair, exported, res, log)
			return nil
		})
	}

	g.Wait()
}

func (s *ContrastService) runALE(ctx context.Context, params contrast.ALEParams, grp group.Group, path string, res *unitResult, log *internal.Logger) {
	name := grp.Name().String()
	req := ports.ALERequest{
		Name:          name,
		PeaksPath:     path,
		VoxelThresh:   params.VoxelThresh,
		ClusterThresh: params.ClusterThresh,
		Seed:          UnitSeed(params.Seed, run.UnitALE, name),
		Iterations:    params.Iterations,
		OutputDir:     params.OutputDir,
	}

	start := time.Now()
	m, err := s.backend.RunALE(ctx, req)
	if err != nil {
		err = unitError(run.UnitALE, name, err)
		log.Error("ALE failed", "group", name, "error", err)
		res.add(run.Failed(run.UnitALE, name, err, time.Since(start)), nil)
		return
	}
	log.Info("ALE finished", "group", name, "clusters", len(m.Clusters), "duration", time.Since(start).Round(time.Millisecond))
	res.add(run.Succeeded(run.UnitALE, name, m.Files, time.Since(start)), m)
}

func (s *ContrastService) runSubtraction(ctx context.Context, params contrast.SubtractionParams, pair contrast.Pair, exported map[core.GroupName]string, res *unitResult, log *internal.Logger) {
	name := string(pair.Name)
	req := ports.SubtractionRequest{
		Name:           name,
		PeaksA:         exported[pair.Minuend],
		PeaksB:         exported[pair.Subtrahend],
		VoxelThresh:    params.VoxelThresh,
		ClusterSizeMM3: params.ClusterSizeMM3,
		Seed:           UnitSeed(params.Seed, run.UnitSubtraction, name),
		Iterations:     params.Iterations,
		OutputDir:      params.OutputDir,
	}

	start := time.Now()
	m, err := s.backend.RunSubtraction(ctx, req)
	if err != nil {
		err = unitError(run.UnitSubtraction, name, err)
		log.Error("subtraction failed", "pair", name, "error", err)
		res.add(run.Failed(run.UnitSubtraction, name, err, time.Since(start)), nil)
		return
	}
	log.Info("subtraction finished", "pair", name, "clusters", len(m.Clusters), "duration", time.Since(start).Round(time.Millisecond))
	res.add(run.Succeeded(run.UnitSubtraction, name, m.Files, time.Since(start)), m)
}

func (s *ContrastService) drawFigure(ctx context.Context, req FigureRequest, res *unitResult, log *internal.Logger) {
	start := time.Now()
	for _, p := range req.Panels {
		if res.failures[p.Map] {
			err := unitError(run.UnitFigure, req.Path,
				fmt.Errorf("%w: panel %s needs %s", core.ErrDependencyFailed, p.Label, p.Map))
			log.Warn("figure skipped", "path", req.Path, "error", err)
			res.add(run.Failed(run.UnitFigure, req.Path, err, 0), nil)
			return
		}
	}

	if err := s.figures.Compose(ctx, req, res.maps); err != nil {
		err = unitError(run.UnitFigure, req.Path, err)
		log.Error("figure failed", "path", req.Path, "error", err)
		res.add(run.Failed(run.UnitFigure, req.Path, err, time.Since(start)), nil)
		return
	}
	res.add(run.Succeeded(run.UnitFigure, req.Path, map[string]string{"figure": req.Path}, time.Since(start)), nil)
}

// record appends every outcome to the ledger. A ledger failure is logged
// and does not change the outcome of the run.
func (s *ContrastService) record(ctx context.Context, runID core.RunID, report *run.Report, log *internal.Logger) {
	if s.ledger == nil {
		return
	}
	for _, o := range report.Outcomes {
		if err := s.ledger.RecordOutcome(ctx, runID, o); err != nil {
			log.Warn("outcome not recorded", "kind", o.Kind, "unit", o.Unit, "error", err)
		}
	}
}

// UnitSeed derives the seed of one unit from the plan seed, so a unit's
// result does not depend on which other units run or in which order
func UnitSeed(base int64, kind run.UnitKind, unit string) int64 {
	return core.DeriveSeed(base, string(kind)+"/"+unit)
}

// validatePanels checks every panel names a plan unit or a map file
func validatePanels(plan *contrast.Plan, fig FigureRequest) error {
	if err := fig.Validate(); err != nil {
		return err
	}
	units := make(map[string]bool)
	for _, g := range plan.Groups() {
		units[g.Name().String()] = true
	}
	for _, p := range plan.Pairs() {
		units[string(p.Name)] = true
	}
	for _, p := range fig.Panels {
		if !units[p.Map] && !IsMapFile(p.Map) {
			return core.NewConfigError(core.ErrUnregisteredExport, "figure panel %s: %q is neither a group, a pair nor a map file", p.Label, p.Map)
		}
	}
	return nil
}

func missingExports(pair contrast.Pair, exported map[core.GroupName]string) []core.GroupName {
	var missing []core.GroupName
	for _, name := range []core.GroupName{pair.Minuend, pair.Subtrahend} {
		if _, ok := exported[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func unitError(kind run.UnitKind, unit string, err error) error {
	return fmt.Errorf("%s %s: %w", kind, unit, err)
}
