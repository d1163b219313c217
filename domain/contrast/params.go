package contrast

import (
	"math"
	"strings"

	"goale/domain/core"
)

// Defaults used by the supplementary analyses
const (
	DefaultVoxelThresh    = 0.001
	DefaultClusterThresh  = 0.01
	DefaultClusterSizeMM3 = 200.0
	DefaultSeed           = 1234
	DefaultALEIterations  = 1000
)

// Subtraction nulls are resampled an order of magnitude more often than
// single-group ALE nulls. Both counts stay independently configurable.
const DefaultSubtractionIterations = 20000

// ALEParams configures one single-group ALE run
type ALEParams struct {
	VoxelThresh   float64 `yaml:"voxel_thresh" json:"voxel_thresh"`
	ClusterThresh float64 `yaml:"cluster_thresh" json:"cluster_thresh"`
	Seed          int64   `yaml:"seed" json:"seed"`
	Iterations    int     `yaml:"iterations" json:"iterations"`
	OutputDir     string  `yaml:"output_dir" json:"output_dir"`
}

// SubtractionParams configures one subtraction run. Cluster correction uses
// a fixed physical cluster volume instead of a cluster-level p-value.
type SubtractionParams struct {
	VoxelThresh    float64 `yaml:"voxel_thresh" json:"voxel_thresh"`
	ClusterSizeMM3 float64 `yaml:"cluster_size_mm3" json:"cluster_size_mm3"`
	Seed           int64   `yaml:"seed" json:"seed"`
	Iterations     int     `yaml:"iterations" json:"iterations"`
	OutputDir      string  `yaml:"output_dir" json:"output_dir"`
}

// DefaultALEParams returns the supplement's ALE settings
func DefaultALEParams(outputDir string) ALEParams {
	return ALEParams{
		VoxelThresh:   DefaultVoxelThresh,
		ClusterThresh: DefaultClusterThresh,
		Seed:          DefaultSeed,
		Iterations:    DefaultALEIterations,
		OutputDir:     outputDir,
	}
}

// DefaultSubtractionParams returns the supplement's subtraction settings
func DefaultSubtractionParams(outputDir string) SubtractionParams {
	return SubtractionParams{
		VoxelThresh:    DefaultVoxelThresh,
		ClusterSizeMM3: DefaultClusterSizeMM3,
		Seed:           DefaultSeed,
		Iterations:     DefaultSubtractionIterations,
		OutputDir:      outputDir,
	}
}

// Validate checks thresholds lie in (0,1) and counts are positive
func (p ALEParams) Validate() error {
	if err := checkProbability("ale.voxel_thresh", p.VoxelThresh); err != nil {
		return err
	}
	if err := checkProbability("ale.cluster_thresh", p.ClusterThresh); err != nil {
		return err
	}
	if p.Iterations <= 0 {
		return core.NewConfigError(core.ErrInvalidParameter, "ale.iterations must be positive, got %d", p.Iterations)
	}
	if strings.TrimSpace(p.OutputDir) == "" {
		return core.NewConfigError(core.ErrInvalidParameter, "ale.output_dir is empty")
	}
	return nil
}

// Validate checks the voxel threshold, cluster volume and iteration count
func (p SubtractionParams) Validate() error {
	if err := checkProbability("subtraction.voxel_thresh", p.VoxelThresh); err != nil {
		return err
	}
	if !(p.ClusterSizeMM3 > 0) || math.IsInf(p.ClusterSizeMM3, 0) {
		return core.NewConfigError(core.ErrInvalidParameter, "subtraction.cluster_size_mm3 must be positive, got %g", p.ClusterSizeMM3)
	}
	if p.Iterations <= 0 {
		return core.NewConfigError(core.ErrInvalidParameter, "subtraction.iterations must be positive, got %d", p.Iterations)
	}
	if strings.TrimSpace(p.OutputDir) == "" {
		return core.NewConfigError(core.ErrInvalidParameter, "subtraction.output_dir is empty")
	}
	return nil
}

func checkProbability(name string, p float64) error {
	if !(p > 0 && p < 1) {
		return core.NewConfigError(core.ErrInvalidParameter, "%s must lie in (0,1), got %g", name, p)
	}
	return nil
}
