// Package report renders a run report as Markdown and HTML
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"goale/domain/core"
	"goale/domain/run"
)

// File names written into the report directory
const (
	MarkdownFile = "report.md"
	HTMLFile     = "report.html"
	JSONFile     = "report.json"
)

// Writer implements ports.ReportWriter
type Writer struct{}

// NewWriter creates a report writer
func NewWriter() *Writer { return &Writer{} }

// WriteReport writes report.md, its HTML rendering and the raw report as JSON
func (w *Writer) WriteReport(ctx context.Context, r *run.Report, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, core.NewIOError("mkdir", dir, err)
	}

	md := Markdown(r)
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	outputs := []struct {
		name string
		data []byte
	}{
		{MarkdownFile, md},
		{HTMLFile, HTML(md, title(r))},
		{JSONFile, raw},
	}

	paths := make([]string, 0, len(outputs))
	for _, out := range outputs {
		path := filepath.Join(dir, out.name)
		if err := os.WriteFile(path, out.data, 0o644); err != nil {
			return nil, core.NewIOError("write", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func title(r *run.Report) string {
	if r.Manifest == nil {
		return "goale run"
	}
	return fmt.Sprintf("goale run %s", r.Manifest.RunID)
}

// Markdown renders the manifest and one table row per unit
func Markdown(r *run.Report) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title(r))

	if m := r.Manifest; m != nil {
		b.WriteString("| | |\n|---|---|\n")
		fmt.Fprintf(&b, "| Created | %s |\n", m.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "| Fingerprint | `%s` |\n", core.Hash(m.Fingerprint).Short())
		fmt.Fprintf(&b, "| Table | `%s` |\n", core.Hash(m.TableHash).Short())
		fmt.Fprintf(&b, "| Plan | `%s` |\n", core.Hash(m.PlanHash).Short())
		fmt.Fprintf(&b, "| Seed | %d |\n", m.Seed)
		fmt.Fprintf(&b, "| Code | %s |\n\n", m.CodeVersion)
	}

	fmt.Fprintf(&b, "%d succeeded, %d failed or skipped.\n\n", len(r.Succeeded()), len(r.Failed()))

	b.WriteString("| Kind | Unit | Status | Duration | Files | Error |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, o := range r.Outcomes {
		errText := ""
		if o.Error != "" {
			errText = fmt.Sprintf("%s: %s", o.ErrorCode, o.Error)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			o.Kind, cell(o.Unit), o.Status, o.Duration.Round(time.Millisecond), cell(files(o.Files)), cell(errText))
	}
	return []byte(b.String())
}

// HTML renders Markdown as a complete page
func HTML(md []byte, pageTitle string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: pageTitle,
	})
	return markdown.ToHTML(md, p, renderer)
}

func files(m map[string]string) string {
	roles := make([]string, 0, len(m))
	for role := range m {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	parts := make([]string, len(roles))
	for i, role := range roles {
		parts[i] = fmt.Sprintf("%s: `%s`", role, filepath.Base(m[role]))
	}
	return strings.Join(parts, "<br>")
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
