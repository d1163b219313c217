package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goale/domain/core"
	"goale/domain/run"
)

func sampleReport() *run.Report {
	r := &run.Report{Manifest: run.NewManifest(core.RunID("run-1"), "tablehash", "planhash", 1234, "dev")}
	r.Add(run.Succeeded(run.UnitALE, "visual", map[string]string{"z": "/out/visual_z.nii.gz"}, 1500*time.Millisecond))
	r.Add(run.Failed(run.UnitSubtraction, "spm_minus_nspm", errors.New("a | b"), time.Second))
	return r
}

func TestMarkdown(t *testing.T) {
	md := string(Markdown(sampleReport()))

	assert.True(t, strings.HasPrefix(md, "# goale run run-1\n"))
	assert.Contains(t, md, "| ale | visual | succeeded | 1.5s | z: `visual_z.nii.gz` |  |")
	assert.Contains(t, md, `a \| b`)
	assert.Contains(t, md, "1 succeeded, 1 failed or skipped.")
}

func TestHTMLRendersTable(t *testing.T) {
	page := string(HTML(Markdown(sampleReport()), "goale run run-1"))
	assert.Contains(t, page, "<title>goale run run-1</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "spm_minus_nspm")
}

func TestWriteReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "report")
	paths, err := NewWriter().WriteReport(context.Background(), sampleReport(), dir)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}
