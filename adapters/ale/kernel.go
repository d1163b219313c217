package ale

import (
	"math"
	"sync"

	"goale/domain/statmap"
)

// Spatial uncertainty of a reported focus, in mm FWHM (Eickhoff et al. 2009):
// a between-template term and a between-subject term shrinking with sample size.
var (
	fwhmScale            = math.Sqrt(8*math.Ln2) / (2 * math.Sqrt(2/math.Pi))
	templateUncertainty  = 5.7 * fwhmScale
	subjectUncertainty1N = 11.6 * fwhmScale
)

// KernelFWHM returns the modeled-activation kernel width for a sample size
func KernelFWHM(subjects int) float64 {
	n := float64(subjects)
	subj := subjectUncertainty1N / math.Sqrt(n)
	return math.Sqrt(subj*subj + templateUncertainty*templateUncertainty)
}

// kernel is a truncated, normalized 3-D Gaussian in voxel offsets
type kernel struct {
	offsets [][3]int
	weights []float64
}

func newKernel(subjects int, voxelSize float64) *kernel {
	sigma := KernelFWHM(subjects) / math.Sqrt(8*math.Ln2) / voxelSize
	r := int(math.Ceil(3 * sigma))
	if r < 1 {
		r = 1
	}

	k := &kernel{}
	sum := 0.0
	for dk := -r; dk <= r; dk++ {
		for dj := -r; dj <= r; dj++ {
			for di := -r; di <= r; di++ {
				d2 := float64(di*di + dj*dj + dk*dk)
				w := math.Exp(-d2 / (2 * sigma * sigma))
				k.offsets = append(k.offsets, [3]int{di, dj, dk})
				k.weights = append(k.weights, w)
				sum += w
			}
		}
	}
	for i := range k.weights {
		k.weights[i] /= sum
	}
	return k
}

// sparse holds the non-zero voxels of one experiment's modeled activation map
type sparse struct {
	idx []int
	val []float64
}

// apply places the kernel at every focus and keeps the per-voxel maximum, so
// nearby foci of one experiment do not add up
func (k *kernel) apply(g statmap.Grid, foci [][3]int) sparse {
	acc := make(map[int]float64, len(foci)*len(k.weights))
	for _, f := range foci {
		for n, off := range k.offsets {
			i, j, kk := f[0]+off[0], f[1]+off[1], f[2]+off[2]
			if !g.Contains(i, j, kk) {
				continue
			}
			idx := g.Index(i, j, kk)
			if w := k.weights[n]; w > acc[idx] {
				acc[idx] = w
			}
		}
	}
	out := sparse{idx: make([]int, 0, len(acc)), val: make([]float64, 0, len(acc))}
	for idx, w := range acc {
		out.idx = append(out.idx, idx)
		out.val = append(out.val, w)
	}
	return out
}

// kernelCache shares kernels between experiments with the same sample size
type kernelCache struct {
	mu        sync.Mutex
	voxelSize float64
	kernels   map[int]*kernel
}

func newKernelCache(voxelSize float64) *kernelCache {
	return &kernelCache{voxelSize: voxelSize, kernels: map[int]*kernel{}}
}

func (c *kernelCache) get(subjects int) *kernel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k, ok := c.kernels[subjects]; ok {
		return k
	}
	k := newKernel(subjects, c.voxelSize)
	c.kernels[subjects] = k
	return k
}
