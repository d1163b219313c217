package ale

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"

	"goale/domain/core"
	"goale/domain/statmap"
	"goale/ports"
)

// RunALE computes the ALE map of one peak file. Voxel p-values come from the
// analytic null histogram; the cluster-size threshold is the (1 -
// ClusterThresh) quantile of the largest null cluster over Iterations random
// relocations of every experiment's foci.
func (e *Engine) RunALE(ctx context.Context, req ports.ALERequest) (*statmap.Map, error) {
	start := time.Now()
	if err := validateALE(req); err != nil {
		return nil, err
	}
	exps, err := e.peaks.ReadPeaks(ctx, req.PeaksPath)
	if err != nil {
		return nil, err
	}
	sets := e.prepare(exps)
	switch {
	case len(sets) == 0:
		return nil, core.NewDegenerateError(core.ErrEmptyGroup, "%s: no foci inside the analysis grid", req.Name)
	case len(sets) < e.cfg.MinExperiments:
		return nil, core.NewDegenerateError(core.ErrTooFewExperiments, "%s: %d contributing experiments, need %d",
			req.Name, len(sets), e.cfg.MinExperiments)
	}

	g := e.grid
	mas := make([]sparse, len(sets))
	for i, fs := range sets {
		mas[i] = e.modeledActivation(fs, fs.foci)
	}
	ale := aleVolume(g, mas)
	sf := nullSurvival(mas, g.Len())

	sizes := make([]float64, req.Iterations)
	err = e.parallel(ctx, req.Iterations, func(ctx context.Context, i int) error {
		size, err := e.nullMaxCluster(ctx, req, sets, sf, i)
		if err != nil {
			return err
		}
		sizes[i] = float64(size)
		return nil
	})
	if err != nil {
		return nil, core.NewBackendError(req.Name, err)
	}
	clusterThreshold, err := stats.Percentile(sizes, 100*(1-req.ClusterThresh))
	if err != nil {
		return nil, core.NewBackendError(req.Name, fmt.Errorf("cluster-size null: %w", err))
	}

	z := statmap.NewVolume(g)
	for i, a := range ale.Data {
		z.Data[i] = oneSidedZ(sf[binOf(a)])
	}
	cutoff := oneSidedCutoff(req.VoxelThresh)
	thresholded, kept := statmap.KeepClusters(z, statmap.Clusters(z, cutoff, statmap.Positive), func(c statmap.Cluster) bool {
		return float64(c.Size) > clusterThreshold
	})

	m := &statmap.Map{
		Name:             req.Name,
		Kind:             statmap.KindALE,
		Z:                z,
		Thresholded:      thresholded,
		VoxelZ:           cutoff,
		ClusterThreshold: clusterThreshold,
		Clusters:         kept,
		Experiments:      len(sets),
		Seed:             req.Seed,
		Iterations:       req.Iterations,
	}
	if err := e.writeOutputs(ctx, req.OutputDir, req.Name, ale, m); err != nil {
		return nil, err
	}

	e.log.Info("ale finished",
		"unit", req.Name,
		"experiments", len(sets),
		"iterations", req.Iterations,
		"cluster_threshold_voxels", clusterThreshold,
		"clusters", len(kept),
		"elapsed", elapsedSince(start))
	return m, nil
}

func validateALE(req ports.ALERequest) error {
	switch {
	case req.Name == "":
		return core.NewConfigError(core.ErrInvalidParameter, "ale request has no name")
	case !(req.VoxelThresh > 0 && req.VoxelThresh < 1):
		return core.NewConfigError(core.ErrInvalidParameter, "%s: voxel threshold %g outside (0,1)", req.Name, req.VoxelThresh)
	case !(req.ClusterThresh > 0 && req.ClusterThresh < 1):
		return core.NewConfigError(core.ErrInvalidParameter, "%s: cluster threshold %g outside (0,1)", req.Name, req.ClusterThresh)
	case req.Iterations <= 0:
		return core.NewConfigError(core.ErrInvalidParameter, "%s: iterations must be positive", req.Name)
	case req.OutputDir == "":
		return core.NewConfigError(core.ErrInvalidParameter, "%s: no output directory", req.Name)
	}
	return nil
}

// aleVolume combines modeled-activation maps as 1 - prod(1 - MA)
func aleVolume(g statmap.Grid, mas []sparse) statmap.Volume {
	prod := make([]float64, g.Len())
	for i := range prod {
		prod[i] = 1
	}
	for _, ma := range mas {
		for n, idx := range ma.idx {
			prod[idx] *= 1 - ma.val[n]
		}
	}
	v := statmap.NewVolume(g)
	for i, p := range prod {
		v.Data[i] = 1 - p
	}
	return v
}

// nullMaxCluster relocates every focus uniformly over the grid and returns
// the largest cluster of voxels significant at the voxel threshold
func (e *Engine) nullMaxCluster(ctx context.Context, req ports.ALERequest, sets []focusSet, sf []float64, iteration int) (int, error) {
	r, err := e.rng.Stream(ctx, req.Name, iteration, req.Seed)
	if err != nil {
		return 0, err
	}
	g := e.grid
	mas := make([]sparse, len(sets))
	for n, fs := range sets {
		foci := make([][3]int, len(fs.foci))
		for f := range foci {
			i, j, k := g.Coords(r.Intn(g.Len()))
			foci[f] = [3]int{i, j, k}
		}
		mas[n] = e.modeledActivation(fs, foci)
	}
	ale := aleVolume(g, mas)

	mask := statmap.NewVolume(g)
	for i, a := range ale.Data {
		if a > 0 && sf[binOf(a)] < req.VoxelThresh {
			mask.Data[i] = 1
		}
	}
	return statmap.MaxClusterSize(mask, 0.5, statmap.Positive), nil
}
