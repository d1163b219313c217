package statmap

// Kind tells which runner produced a map
type Kind string

const (
	KindALE         Kind = "ale"
	KindSubtraction Kind = "subtraction"
)

// File roles a runner persists
const (
	FileZ          = "z"
	FileZThresh    = "z_thresh"
	FileALE        = "stat"
	FileClusterCSV = "clusters"
)

// Map is the immutable output of an ALE or subtraction run: an unthresholded
// z map, its cluster-corrected version and the thresholds that produced it.
type Map struct {
	Name             string            `json:"name"`
	Kind             Kind              `json:"kind"`
	Z                Volume            `json:"-"`
	Thresholded      Volume            `json:"-"`
	VoxelZ           float64           `json:"voxel_z"`
	ClusterThreshold float64           `json:"cluster_threshold"`
	Clusters         []Cluster         `json:"clusters"`
	Experiments      int               `json:"experiments"`
	Seed             int64             `json:"seed"`
	Iterations       int               `json:"iterations"`
	Files            map[string]string `json:"files"`
}

// Grid returns the geometry of the map
func (m *Map) Grid() Grid { return m.Z.Grid }

// Significant reports whether any cluster survived correction
func (m *Map) Significant() bool { return len(m.Clusters) > 0 }

// File returns the persisted path for a role, if any
func (m *Map) File(role string) (string, bool) {
	p, ok := m.Files[role]
	return p, ok
}
