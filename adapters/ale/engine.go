// Package ale is the statistics backend: single-group activation likelihood
// estimation with cluster-level family-wise error correction, and label
// permutation subtraction between two groups.
package ale

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"goale/domain/core"
	"goale/domain/experiment"
	"goale/domain/statmap"
	"goale/internal"
	"goale/ports"
)

// Config holds engine settings that are not part of a request
type Config struct {
	VoxelSize       float64 // mm, cubic voxels over the MNI box
	MinExperiments  int     // contributing experiments an ALE needs
	DefaultSubjects int     // sample size assumed when a block omits it
	Workers         int     // concurrent Monte Carlo iterations across all runs
}

// DefaultConfig returns a 4 mm grid, two experiments minimum and one worker
// per CPU
func DefaultConfig() Config {
	return Config{
		VoxelSize:       4,
		MinExperiments:  2,
		DefaultSubjects: 20,
		Workers:         runtime.GOMAXPROCS(0),
	}
}

// Engine implements ports.Backend
type Engine struct {
	cfg     Config
	grid    statmap.Grid
	peaks   ports.PeakReader
	maps    ports.MapWriter
	rng     ports.RNGPort
	kernels *kernelCache
	sem     *semaphore.Weighted
	log     *internal.Logger
}

// NewEngine wires the backend to its peak reader, map writer and RNG
func NewEngine(cfg Config, peaks ports.PeakReader, maps ports.MapWriter, rng ports.RNGPort, log *internal.Logger) (*Engine, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.MinExperiments <= 0 {
		cfg.MinExperiments = 1
	}
	if cfg.DefaultSubjects <= 0 {
		cfg.DefaultSubjects = DefaultConfig().DefaultSubjects
	}
	grid, err := statmap.NewMNIGrid(cfg.VoxelSize)
	if err != nil {
		return nil, core.NewConfigError(core.ErrInvalidParameter, "ale voxel size: %v", err)
	}
	if log == nil {
		log = internal.NewNopLogger()
	}
	return &Engine{
		cfg:     cfg,
		grid:    grid,
		peaks:   peaks,
		maps:    maps,
		rng:     rng,
		kernels: newKernelCache(cfg.VoxelSize),
		sem:     semaphore.NewWeighted(int64(cfg.Workers)),
		log:     log.Named("ale"),
	}, nil
}

// Grid returns the analysis grid
func (e *Engine) Grid() statmap.Grid { return e.grid }

// focusSet is one contributing experiment: its foci in voxel coordinates
type focusSet struct {
	id       core.ExperimentID
	subjects int
	foci     [][3]int
}

// prepare drops foci outside the grid and experiments left without any
func (e *Engine) prepare(exps []experiment.Experiment) []focusSet {
	sets := make([]focusSet, 0, len(exps))
	for _, exp := range exps {
		fs := focusSet{id: exp.ID(), subjects: exp.Subjects()}
		if fs.subjects <= 0 {
			fs.subjects = e.cfg.DefaultSubjects
		}
		for _, p := range exp.Peaks() {
			if i, j, k, ok := e.grid.FromMNI(p.X, p.Y, p.Z); ok {
				fs.foci = append(fs.foci, [3]int{i, j, k})
			}
		}
		if len(fs.foci) > 0 {
			sets = append(sets, fs)
		}
	}
	return sets
}

func (e *Engine) modeledActivation(fs focusSet, foci [][3]int) sparse {
	return e.kernels.get(fs.subjects).apply(e.grid, foci)
}

// parallel runs fn for every iteration, at most Workers at a time across
// the whole engine. Results must be stored by iteration index.
func (e *Engine) parallel(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := e.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer e.sem.Release(1)
			return fn(ctx, i)
		})
	}
	return g.Wait()
}

// writeOutputs persists the maps of a run and returns their paths by role
func (e *Engine) writeOutputs(ctx context.Context, dir, name string, stat statmap.Volume, m *statmap.Map) error {
	files := map[string]string{
		statmap.FileZ:          filepath.Join(dir, name+"_z.nii.gz"),
		statmap.FileZThresh:    filepath.Join(dir, name+"_z_thresh.nii.gz"),
		statmap.FileALE:        filepath.Join(dir, name+"_stat.nii.gz"),
		statmap.FileClusterCSV: filepath.Join(dir, name+"_clusters.csv"),
	}
	volumes := []struct {
		role string
		v    statmap.Volume
	}{
		{statmap.FileZ, m.Z},
		{statmap.FileZThresh, m.Thresholded},
		{statmap.FileALE, stat},
	}
	for _, out := range volumes {
		if err := e.maps.WriteMap(ctx, out.v, files[out.role]); err != nil {
			return err
		}
	}
	if err := writeClusterTable(files[statmap.FileClusterCSV], m.Grid(), m.Clusters); err != nil {
		return err
	}
	m.Files = files
	return nil
}

func experimentIDs(sets []focusSet) []string {
	ids := make([]string, len(sets))
	for i, s := range sets {
		ids[i] = s.id.String()
	}
	sort.Strings(ids)
	return ids
}

func sameExperiments(a, b []focusSet) bool {
	ia, ib := experimentIDs(a), experimentIDs(b)
	if len(ia) != len(ib) {
		return false
	}
	for i := range ia {
		if ia[i] != ib[i] {
			return false
		}
	}
	return true
}

func elapsedSince(start time.Time) string {
	return fmt.Sprintf("%.2fs", time.Since(start).Seconds())
}
