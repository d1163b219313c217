// Package statmap holds voxel grids, statistical maps and the geometry the
// backend and renderer share.
package statmap

import (
	"fmt"
	"math"
)

// MNI bounding box of the 2 mm MNI152 template, in mm
var (
	MNIMin = [3]float64{-90, -126, -72}
	MNIMax = [3]float64{90, 90, 108}
)

// Grid is a regular voxel lattice in MNI space. Origin is the MNI position of
// voxel (0, 0, 0); axes run along +x, +y, +z.
type Grid struct {
	Dims      [3]int     `json:"dims"`
	VoxelSize float64    `json:"voxel_size"`
	Origin    [3]float64 `json:"origin"`
}

// NewMNIGrid covers the MNI bounding box with cubic voxels of the given size
func NewMNIGrid(voxelSize float64) (Grid, error) {
	if voxelSize <= 0 || math.IsNaN(voxelSize) {
		return Grid{}, fmt.Errorf("voxel size must be positive, got %g", voxelSize)
	}
	var dims [3]int
	for a := 0; a < 3; a++ {
		dims[a] = int(math.Floor((MNIMax[a]-MNIMin[a])/voxelSize)) + 1
	}
	return Grid{Dims: dims, VoxelSize: voxelSize, Origin: MNIMin}, nil
}

// Len returns the number of voxels
func (g Grid) Len() int { return g.Dims[0] * g.Dims[1] * g.Dims[2] }

// VoxelVolume returns the volume of one voxel in mm³
func (g Grid) VoxelVolume() float64 { return g.VoxelSize * g.VoxelSize * g.VoxelSize }

// Index flattens voxel coordinates, x fastest
func (g Grid) Index(i, j, k int) int {
	return i + g.Dims[0]*(j+g.Dims[1]*k)
}

// Coords unflattens a voxel index
func (g Grid) Coords(idx int) (int, int, int) {
	i := idx % g.Dims[0]
	rest := idx / g.Dims[0]
	return i, rest % g.Dims[1], rest / g.Dims[1]
}

// Contains reports whether voxel coordinates are inside the grid
func (g Grid) Contains(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < g.Dims[0] && j < g.Dims[1] && k < g.Dims[2]
}

// ToMNI returns the MNI position of a voxel centre
func (g Grid) ToMNI(i, j, k int) (float64, float64, float64) {
	return g.Origin[0] + float64(i)*g.VoxelSize,
		g.Origin[1] + float64(j)*g.VoxelSize,
		g.Origin[2] + float64(k)*g.VoxelSize
}

// FromMNI returns the nearest voxel to an MNI position
func (g Grid) FromMNI(x, y, z float64) (int, int, int, bool) {
	i := int(math.Round((x - g.Origin[0]) / g.VoxelSize))
	j := int(math.Round((y - g.Origin[1]) / g.VoxelSize))
	k := int(math.Round((z - g.Origin[2]) / g.VoxelSize))
	return i, j, k, g.Contains(i, j, k)
}

// Equal compares grid geometry
func (g Grid) Equal(o Grid) bool {
	return g.Dims == o.Dims && g.VoxelSize == o.VoxelSize && g.Origin == o.Origin
}
