package statmap

import "math"

// Volume is a scalar field over a grid
type Volume struct {
	Grid Grid
	Data []float64
}

// NewVolume allocates a zero volume
func NewVolume(g Grid) Volume {
	return Volume{Grid: g, Data: make([]float64, g.Len())}
}

// At returns the value at voxel (i, j, k)
func (v Volume) At(i, j, k int) float64 { return v.Data[v.Grid.Index(i, j, k)] }

// Set assigns the value at voxel (i, j, k)
func (v Volume) Set(i, j, k int, x float64) { v.Data[v.Grid.Index(i, j, k)] = x }

// Clone deep-copies the volume
func (v Volume) Clone() Volume {
	out := Volume{Grid: v.Grid, Data: make([]float64, len(v.Data))}
	copy(out.Data, v.Data)
	return out
}

// Max returns the largest value, or 0 for an empty volume
func (v Volume) Max() float64 {
	if len(v.Data) == 0 {
		return 0
	}
	m := math.Inf(-1)
	for _, x := range v.Data {
		if x > m {
			m = x
		}
	}
	return m
}

// Min returns the smallest value, or 0 for an empty volume
func (v Volume) Min() float64 {
	if len(v.Data) == 0 {
		return 0
	}
	m := math.Inf(1)
	for _, x := range v.Data {
		if x < m {
			m = x
		}
	}
	return m
}

// Count returns the number of non-zero voxels
func (v Volume) Count() int {
	n := 0
	for _, x := range v.Data {
		if x != 0 {
			n++
		}
	}
	return n
}

// Mask keeps only the voxels listed in keep, zeroing the rest
func (v Volume) Mask(keep []int) Volume {
	out := NewVolume(v.Grid)
	for _, idx := range keep {
		out.Data[idx] = v.Data[idx]
	}
	return out
}
