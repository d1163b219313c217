package ale

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// ALE values are binned at this resolution when building null distributions
const (
	histStep = 1e-4
	histBins = 10001
	pFloor   = 1e-15
)

func binOf(x float64) int {
	k := int(math.Round(x / histStep))
	switch {
	case k < 0:
		return 0
	case k >= histBins:
		return histBins - 1
	}
	return k
}

// nullSurvival returns P(null ALE >= bin) for every bin. The null is the ALE
// distribution obtained when each experiment's modeled-activation values are
// drawn independently from its own voxel histogram, i.e. the expectation of
// relocating foci uniformly over the grid.
func nullSurvival(mas []sparse, voxels int) []float64 {
	null := make([]float64, histBins)
	null[0] = 1
	next := make([]float64, histBins)

	for _, ma := range mas {
		hist := maHistogram(ma, voxels)

		for i := range next {
			next[i] = 0
		}
		for ia, pa := range null {
			if pa == 0 {
				continue
			}
			a := float64(ia) * histStep
			for _, h := range hist {
				m := float64(h.bin) * histStep
				next[binOf(a+m-a*m)] += pa * h.p
			}
		}
		null, next = next, null
	}

	sf := make([]float64, histBins)
	acc := 0.0
	for b := histBins - 1; b >= 0; b-- {
		acc += null[b]
		sf[b] = math.Min(acc, 1)
	}
	return sf
}

type binProb struct {
	bin int
	p   float64
}

// maHistogram bins one modeled-activation map over the whole grid, zeros
// included, in ascending bin order
func maHistogram(ma sparse, voxels int) []binProb {
	counts := make(map[int]int, 64)
	for _, v := range ma.val {
		counts[binOf(v)]++
	}
	counts[0] += voxels - len(ma.val)

	bins := make([]int, 0, len(counts))
	for b := range counts {
		bins = append(bins, b)
	}
	sort.Ints(bins)

	out := make([]binProb, len(bins))
	for i, b := range bins {
		out[i] = binProb{bin: b, p: float64(counts[b]) / float64(voxels)}
	}
	return out
}

// oneSidedZ converts an upper-tail p-value into a non-negative z score
func oneSidedZ(p float64) float64 {
	p = math.Max(p, pFloor)
	if p >= 0.5 {
		return 0
	}
	return -distuv.UnitNormal.Quantile(p)
}

// twoSidedZ converts a two-sided p-value into a signed z score
func twoSidedZ(p float64, sign float64) float64 {
	p = math.Min(math.Max(p, pFloor), 1)
	z := -distuv.UnitNormal.Quantile(p / 2)
	if sign < 0 {
		return -z
	}
	return z
}

// oneSidedCutoff is the z a voxel must exceed to be significant at p
func oneSidedCutoff(p float64) float64 { return -distuv.UnitNormal.Quantile(p) }

// twoSidedCutoff is the |z| a voxel must exceed to be significant at p
func twoSidedCutoff(p float64) float64 { return -distuv.UnitNormal.Quantile(p / 2) }
