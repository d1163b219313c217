package main

import (
	"context"
	"path/filepath"

	"goale/adapters/ale"
	"goale/adapters/ledger"
	"goale/adapters/nifti"
	"goale/adapters/render"
	"goale/adapters/report"
	"goale/adapters/rng"
	"goale/adapters/sleuth"
	"goale/adapters/table"
	"goale/app"
	"goale/domain/contrast"
	"goale/domain/core"
	"goale/internal"
	"goale/internal/config"
)

// env holds everything a command needs, built from the environment
type env struct {
	cfg    *config.Config
	log    *internal.Logger
	tables *table.Reader
	maps   *nifti.Store
	ledger *ledger.Store
}

func newEnv(ctx context.Context, withLedger bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level))

	e := &env{
		cfg:    cfg,
		log:    log,
		tables: table.NewReader(log),
		maps:   nifti.NewStore(),
	}
	if withLedger && cfg.Ledger.Enabled() {
		store, err := ledger.Open(ctx, cfg.Ledger.DSN)
		if err != nil {
			return nil, err
		}
		e.ledger = store
	}
	return e, nil
}

func (e *env) Close() {
	if e.ledger != nil {
		if err := e.ledger.Close(); err != nil {
			e.log.Warn("closing ledger", "error", err)
		}
	}
	_ = e.log.Sync()
}

// loadPlan reads the plan file, or the built-in plan when path is empty,
// and validates it against its experiment table
func (e *env) loadPlan(ctx context.Context, path string) (*config.PlanFile, *contrast.Plan, error) {
	file := config.DefaultPlan()
	if path != "" {
		var err error
		if file, err = config.LoadPlan(path); err != nil {
			return nil, nil, err
		}
	}
	tbl, err := e.tables.ReadTable(ctx, file.Table)
	if err != nil {
		return nil, nil, err
	}
	plan, err := file.Build(tbl)
	if err != nil {
		return nil, nil, err
	}
	return file, plan, nil
}

func (e *env) engine() (*ale.Engine, error) {
	cfg := ale.Config{
		VoxelSize:       e.cfg.Backend.VoxelSize,
		MinExperiments:  e.cfg.Backend.MinExperiments,
		DefaultSubjects: e.cfg.Backend.DefaultSubjects,
		Workers:         e.cfg.Backend.Workers,
	}
	return ale.NewEngine(cfg, sleuth.NewReader(), e.maps, rng.New(), e.log)
}

func (e *env) figures() *app.FigureService {
	return app.NewFigureService(render.NewRenderer(e.log), e.maps, e.log)
}

func (e *env) service() (*app.ContrastService, error) {
	engine, err := e.engine()
	if err != nil {
		return nil, err
	}
	opts := app.ServiceOptions{
		Workers:     e.cfg.Backend.Workers,
		CodeVersion: e.cfg.CodeVersion,
		Reports:     report.NewWriter(),
		Logger:      e.log,
	}
	if e.ledger != nil {
		opts.Ledger = e.ledger
	}
	return app.NewContrastService(sleuth.NewExporter(e.log), engine, e.figures(), opts), nil
}

// figureRequest converts the plan's figure section. Panels keep their
// references; with fromFiles set, unit names resolve to the z maps a
// previous run wrote.
func figureRequest(file *config.PlanFile, plan *contrast.Plan, fromFiles bool) *app.FigureRequest {
	if file.Figure.Path == "" || len(file.Figure.Panels) == 0 {
		return nil
	}
	req := &app.FigureRequest{
		Path:        file.Figure.Path,
		VMin:        file.Figure.VMin,
		VMax:        file.Figure.VMax,
		DisplayMode: file.Figure.DisplayMode,
	}
	for _, p := range file.Figure.Panels {
		ref := p.Map
		if fromFiles && !app.IsMapFile(ref) {
			ref = mapFile(plan, ref)
		}
		req.Panels = append(req.Panels, app.PanelRequest{Map: ref, Label: p.Label, Title: p.Title})
	}
	return req
}

func mapFile(plan *contrast.Plan, unit string) string {
	dir := plan.ALE.OutputDir
	for _, p := range plan.Pairs() {
		if string(p.Name) == unit {
			dir = plan.Subtraction.OutputDir
			break
		}
	}
	return filepath.Join(dir, unit+"_z.nii.gz")
}

func appRunRequest(file *config.PlanFile, plan *contrast.Plan, runID core.RunID, reportDir string, withFigure bool) app.RunRequest {
	req := app.RunRequest{Plan: plan, RunID: runID, ReportDir: reportDir}
	if withFigure {
		req.Figure = figureRequest(file, plan, false)
	}
	return req
}
