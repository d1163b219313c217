package statmap

import "sort"

// Sign selects which tail of a map clusters are formed from
type Sign int

const (
	Positive Sign = 1
	Negative Sign = -1
	TwoSided Sign = 0
)

// Cluster is a 26-connected set of supra-threshold voxels of one sign
type Cluster struct {
	Size      int        `json:"size"`
	Sign      Sign       `json:"sign"`
	PeakValue float64    `json:"peak_value"`
	PeakMNI   [3]float64 `json:"peak_mni"`
	Voxels    []int      `json:"-"`
}

// VolumeMM3 returns the cluster volume in mm³ on grid g
func (c Cluster) VolumeMM3(g Grid) float64 {
	return float64(c.Size) * g.VoxelVolume()
}

func supra(x, cutoff float64, sign Sign) Sign {
	switch {
	case sign != Negative && x > cutoff:
		return Positive
	case sign != Positive && x < -cutoff:
		return Negative
	}
	return TwoSided
}

// Clusters labels connected components of voxels beyond cutoff. With
// TwoSided, positive and negative voxels form separate clusters. Results are
// ordered by size, then by first voxel index, so labelling is deterministic.
func Clusters(v Volume, cutoff float64, sign Sign) []Cluster {
	g := v.Grid
	labels := make([]bool, len(v.Data))
	var clusters []Cluster
	queue := make([]int, 0, 64)

	for start, x := range v.Data {
		s := supra(x, cutoff, sign)
		if labels[start] || s == TwoSided {
			continue
		}
		c := Cluster{Sign: s}
		labels[start] = true
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]
			c.Voxels = append(c.Voxels, idx)
			val := v.Data[idx]
			if c.Size == 0 || abs(val) > abs(c.PeakValue) {
				c.PeakValue = val
				i, j, k := g.Coords(idx)
				x, y, z := g.ToMNI(i, j, k)
				c.PeakMNI = [3]float64{x, y, z}
			}
			c.Size++

			i, j, k := g.Coords(idx)
			for dk := -1; dk <= 1; dk++ {
				for dj := -1; dj <= 1; dj++ {
					for di := -1; di <= 1; di++ {
						ni, nj, nk := i+di, j+dj, k+dk
						if !g.Contains(ni, nj, nk) {
							continue
						}
						n := g.Index(ni, nj, nk)
						if labels[n] || supra(v.Data[n], cutoff, sign) != s {
							continue
						}
						labels[n] = true
						queue = append(queue, n)
					}
				}
			}
		}
		sort.Ints(c.Voxels)
		clusters = append(clusters, c)
	}

	sort.SliceStable(clusters, func(a, b int) bool {
		if clusters[a].Size != clusters[b].Size {
			return clusters[a].Size > clusters[b].Size
		}
		return clusters[a].Voxels[0] < clusters[b].Voxels[0]
	})
	return clusters
}

// MaxClusterSize returns the size of the largest cluster beyond cutoff
func MaxClusterSize(v Volume, cutoff float64, sign Sign) int {
	best := 0
	for _, c := range Clusters(v, cutoff, sign) {
		if c.Size > best {
			best = c.Size
		}
	}
	return best
}

// KeepClusters zeroes every voxel outside clusters accepted by keep
func KeepClusters(v Volume, clusters []Cluster, keep func(Cluster) bool) (Volume, []Cluster) {
	out := NewVolume(v.Grid)
	var kept []Cluster
	for _, c := range clusters {
		if !keep(c) {
			continue
		}
		kept = append(kept, c)
		for _, idx := range c.Voxels {
			out.Data[idx] = v.Data[idx]
		}
	}
	return out, kept
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
