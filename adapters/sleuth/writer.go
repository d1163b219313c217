// Package sleuth reads and writes peak coordinates in the Sleuth text
// layout consumed by ALE tools: a reference-space header, then one block per
// experiment with its name, sample size and one tab-separated focus per line.
package sleuth

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"goale/domain/core"
	"goale/domain/group"
	"goale/internal"
)

const (
	referenceLine  = "// Reference=MNI"
	subjectsPrefix = "// Subjects="
)

// Exporter implements ports.PeakExporter
type Exporter struct {
	log *internal.Logger
}

// NewExporter creates a Sleuth exporter
func NewExporter(log *internal.Logger) *Exporter {
	if log == nil {
		log = internal.NewNopLogger()
	}
	return &Exporter{log: log.Named("sleuth")}
}

// Export writes the group to destination. Data goes to a temporary file in
// the destination directory which is renamed over the destination only once
// fully written and synced. An empty group yields a header-only file.
func (e *Exporter) Export(ctx context.Context, g group.Group, destination string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.NewIOError("mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(destination)+".*.tmp")
	if err != nil {
		return core.NewIOError("create", destination, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := encode(w, g); err != nil {
		return core.NewIOError("write", destination, err)
	}
	if err := w.Flush(); err != nil {
		return core.NewIOError("write", destination, err)
	}
	if err := tmp.Sync(); err != nil {
		return core.NewIOError("sync", destination, err)
	}
	if err := tmp.Close(); err != nil {
		return core.NewIOError("close", destination, err)
	}
	if err := os.Rename(tmpName, destination); err != nil {
		return core.NewIOError("rename", destination, err)
	}
	committed = true

	e.log.Debug("exported group", "group", g.Name(), "experiments", g.Len(), "peaks", g.PeakCount(), "path", destination)
	return nil
}

func encode(w *bufio.Writer, g group.Group) error {
	if _, err := fmt.Fprintln(w, referenceLine); err != nil {
		return err
	}
	for i, exp := range g.Experiments {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "// %s\n%s%d\n", exp.ID(), subjectsPrefix, exp.Subjects()); err != nil {
			return err
		}
		for _, p := range exp.Peaks() {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", formatCoord(p.X), formatCoord(p.Y), formatCoord(p.Z)); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
