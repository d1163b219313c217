package ale

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"goale/domain/core"
	"goale/domain/statmap"
)

var clusterHeader = []string{"cluster", "sign", "voxels", "volume_mm3", "peak_z", "peak_x", "peak_y", "peak_z_mm"}

// writeClusterTable lists surviving clusters, largest first
func writeClusterTable(path string, g statmap.Grid, clusters []statmap.Cluster) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.NewIOError("mkdir", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return core.NewIOError("create", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rows := [][]string{clusterHeader}
	for i, c := range clusters {
		sign := "+"
		if c.Sign == statmap.Negative {
			sign = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			sign,
			strconv.Itoa(c.Size),
			strconv.FormatFloat(c.VolumeMM3(g), 'f', 0, 64),
			strconv.FormatFloat(c.PeakValue, 'f', 3, 64),
			strconv.FormatFloat(c.PeakMNI[0], 'f', 0, 64),
			strconv.FormatFloat(c.PeakMNI[1], 'f', 0, 64),
			strconv.FormatFloat(c.PeakMNI[2], 'f', 0, 64),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		return core.NewIOError("write", path, err)
	}
	if err := f.Close(); err != nil {
		return core.NewIOError("close", path, err)
	}
	return nil
}
