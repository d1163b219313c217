package ale

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"goale/domain/core"
	"goale/domain/statmap"
	"goale/ports"
)

// RunSubtraction computes ALE(A) - ALE(B). The null distribution of the
// difference comes from randomly reassigning the pooled experiments to two
// groups of the original sizes; the voxel p-value is two-sided and the map is
// signed, positive where A exceeds B. Clusters smaller than ClusterSizeMM3
// are removed.
func (e *Engine) RunSubtraction(ctx context.Context, req ports.SubtractionRequest) (*statmap.Map, error) {
	start := time.Now()
	if err := validateSubtraction(req); err != nil {
		return nil, err
	}
	expsA, err := e.peaks.ReadPeaks(ctx, req.PeaksA)
	if err != nil {
		return nil, err
	}
	expsB, err := e.peaks.ReadPeaks(ctx, req.PeaksB)
	if err != nil {
		return nil, err
	}
	setsA, setsB := e.prepare(expsA), e.prepare(expsB)
	switch {
	case len(setsA) == 0:
		return nil, core.NewDegenerateError(core.ErrEmptyGroup, "%s: minuend %s has no foci", req.Name, req.PeaksA)
	case len(setsB) == 0:
		return nil, core.NewDegenerateError(core.ErrEmptyGroup, "%s: subtrahend %s has no foci", req.Name, req.PeaksB)
	case sameExperiments(setsA, setsB):
		return nil, core.NewDegenerateError(core.ErrIdenticalGroups, "%s: both sides hold the same %d experiments", req.Name, len(setsA))
	}

	g := e.grid
	pooled := append(append([]focusSet{}, setsA...), setsB...)
	global := make([]sparse, len(pooled))
	for i, fs := range pooled {
		global[i] = e.modeledActivation(fs, fs.foci)
	}
	mask, local := compact(global)

	nA := len(setsA)
	all := make([]int, len(pooled))
	for i := range all {
		all[i] = i
	}
	observed := difference(len(mask), local, all[:nA], all[nA:])

	var mu sync.Mutex
	exceed := make([]int, len(mask))
	err = e.parallel(ctx, req.Iterations, func(ctx context.Context, i int) error {
		r, err := e.rng.Stream(ctx, req.Name, i, req.Seed)
		if err != nil {
			return err
		}
		perm := r.Perm(len(pooled))
		null := difference(len(mask), local, perm[:nA], perm[nA:])

		mu.Lock()
		defer mu.Unlock()
		for v, d := range null {
			if math.Abs(d) >= math.Abs(observed[v]) {
				exceed[v]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, core.NewBackendError(req.Name, err)
	}

	stat := statmap.NewVolume(g)
	z := statmap.NewVolume(g)
	for v, idx := range mask {
		stat.Data[idx] = observed[v]
		if observed[v] == 0 {
			continue
		}
		p := float64(exceed[v]+1) / float64(req.Iterations+1)
		z.Data[idx] = twoSidedZ(p, observed[v])
	}

	cutoff := twoSidedCutoff(req.VoxelThresh)
	thresholded, kept := statmap.KeepClusters(z, statmap.Clusters(z, cutoff, statmap.TwoSided), func(c statmap.Cluster) bool {
		return c.VolumeMM3(g) >= req.ClusterSizeMM3
	})

	m := &statmap.Map{
		Name:             req.Name,
		Kind:             statmap.KindSubtraction,
		Z:                z,
		Thresholded:      thresholded,
		VoxelZ:           cutoff,
		ClusterThreshold: req.ClusterSizeMM3,
		Clusters:         kept,
		Experiments:      len(pooled),
		Seed:             req.Seed,
		Iterations:       req.Iterations,
	}
	if err := e.writeOutputs(ctx, req.OutputDir, req.Name, stat, m); err != nil {
		return nil, err
	}

	e.log.Info("subtraction finished",
		"unit", req.Name,
		"minuend_experiments", len(setsA),
		"subtrahend_experiments", len(setsB),
		"iterations", req.Iterations,
		"clusters", len(kept),
		"elapsed", elapsedSince(start))
	return m, nil
}

func validateSubtraction(req ports.SubtractionRequest) error {
	switch {
	case req.Name == "":
		return core.NewConfigError(core.ErrInvalidParameter, "subtraction request has no name")
	case !(req.VoxelThresh > 0 && req.VoxelThresh < 1):
		return core.NewConfigError(core.ErrInvalidParameter, "%s: voxel threshold %g outside (0,1)", req.Name, req.VoxelThresh)
	case !(req.ClusterSizeMM3 > 0):
		return core.NewConfigError(core.ErrInvalidParameter, "%s: cluster size must be positive", req.Name)
	case req.Iterations <= 0:
		return core.NewConfigError(core.ErrInvalidParameter, "%s: iterations must be positive", req.Name)
	case req.OutputDir == "":
		return core.NewConfigError(core.ErrInvalidParameter, "%s: no output directory", req.Name)
	}
	return nil
}

// compact restricts modeled-activation maps to the voxels any of them
// touches. It returns the grid index of every kept voxel and the maps
// re-indexed into that list.
func compact(mas []sparse) ([]int, []sparse) {
	seen := map[int]bool{}
	for _, ma := range mas {
		for _, idx := range ma.idx {
			seen[idx] = true
		}
	}
	mask := make([]int, 0, len(seen))
	for idx := range seen {
		mask = append(mask, idx)
	}
	sort.Ints(mask)
	pos := make(map[int]int, len(mask))
	for i, idx := range mask {
		pos[idx] = i
	}

	local := make([]sparse, len(mas))
	for n, ma := range mas {
		l := sparse{idx: make([]int, len(ma.idx)), val: ma.val}
		for i, idx := range ma.idx {
			l.idx[i] = pos[idx]
		}
		local[n] = l
	}
	return mask, local
}

// difference returns ALE(a) - ALE(b) over the compacted voxels, where a and
// b index into mas
func difference(size int, mas []sparse, a, b []int) []float64 {
	prodA := make([]float64, size)
	prodB := make([]float64, size)
	for i := range prodA {
		prodA[i], prodB[i] = 1, 1
	}
	for _, n := range a {
		for k, idx := range mas[n].idx {
			prodA[idx] *= 1 - mas[n].val[k]
		}
	}
	for _, n := range b {
		for k, idx := range mas[n].idx {
			prodB[idx] *= 1 - mas[n].val[k]
		}
	}
	out := make([]float64, size)
	for i := range out {
		out[i] = (1 - prodA[i]) - (1 - prodB[i])
	}
	return out
}
