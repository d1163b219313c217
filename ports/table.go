package ports

import (
	"context"

	"goale/domain/experiment"
	"goale/domain/group"
)

// TableReader loads the experiment table an analysis plan is built on
type TableReader interface {
	ReadTable(ctx context.Context, path string) (*experiment.Table, error)
}

// PeakExporter writes a group's peaks to a text file the ALE backend reads.
// The destination is replaced atomically and only on success.
type PeakExporter interface {
	Export(ctx context.Context, g group.Group, destination string) error
}

// PeakReader parses an exported peak file back into per-experiment blocks
type PeakReader interface {
	ReadPeaks(ctx context.Context, path string) ([]experiment.Experiment, error)
}
