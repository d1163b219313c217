// Package render draws glass-brain figures: one row of maximum-intensity
// projections per statistical map, on a shared diverging colour scale.
package render

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgpdf"
	"gonum.org/v1/plot/vg/vgsvg"

	"goale/domain/core"
	"goale/domain/statmap"
	"goale/internal"
	"goale/ports"
)

const (
	figureWidth = 6 * vg.Inch
	rowHeight   = 1.7 * vg.Inch
	barHeight   = 0.6 * vg.Inch
	paletteSize = 255
)

// Renderer implements ports.Renderer
type Renderer struct {
	log *internal.Logger
}

// NewRenderer creates a renderer
func NewRenderer(log *internal.Logger) *Renderer {
	if log == nil {
		log = internal.NewNopLogger()
	}
	return &Renderer{log: log.Named("render")}
}

// NewFigure starts an empty figure with the given colour bounds
func (r *Renderer) NewFigure(vmin, vmax float64) ports.FigureBuilder {
	return &Figure{vmin: vmin, vmax: vmax, log: r.log}
}

type panel struct {
	spec   ports.Panel
	name   string
	volume statmap.Volume
	views  []statmap.View
}

// Figure implements ports.FigureBuilder
type Figure struct {
	vmin   float64
	vmax   float64
	panels []panel
	log    *internal.Logger
}

// AddPanel appends a row for m. Panels are drawn in the order added.
func (f *Figure) AddPanel(m *statmap.Map, p ports.Panel) error {
	if m == nil {
		return core.NewConfigError(core.ErrConfiguration, "panel %q has no map", p.Label)
	}
	mode := p.DisplayMode
	if mode == "" {
		mode = ports.DefaultDisplayMode
	}
	views, ok := statmap.ParseDisplayMode(mode)
	if !ok {
		return core.NewConfigError(core.ErrInvalidParameter, "panel %q: display mode %q", p.Label, mode)
	}
	if len(m.Z.Data) != m.Grid().Len() {
		return core.NewConfigError(core.ErrConfiguration, "panel %q: map %s has no voxel data", p.Label, m.Name)
	}
	f.panels = append(f.panels, panel{spec: p, name: m.Name, volume: m.Z, views: views})
	return nil
}

// scale returns the colour range. Signed panels force a range symmetric
// around zero.
func (f *Figure) scale() (float64, float64) {
	for _, p := range f.panels {
		if p.spec.Signed {
			m := math.Max(math.Abs(f.vmin), math.Abs(f.vmax))
			return -m, m
		}
	}
	return f.vmin, f.vmax
}

// Save renders every panel and writes a PDF or SVG, chosen by extension
func (f *Figure) Save(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(f.panels) == 0 {
		return core.NewConfigError(core.ErrConfiguration, "figure %s has no panels", path)
	}
	lo, hi := f.scale()
	if !(hi > lo) {
		return core.NewConfigError(core.ErrInvalidParameter, "figure colour range [%g, %g] is empty", lo, hi)
	}

	height := vg.Length(len(f.panels))*rowHeight + barHeight
	var canvas vg.CanvasWriterTo
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		canvas = vgpdf.New(figureWidth, height)
	case ".svg":
		canvas = vgsvg.New(figureWidth, height)
	default:
		return core.NewConfigError(core.ErrUnsupportedFormat, "figure %s: extension %q", path, ext)
	}

	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(lo)
	cmap.SetMax(hi)
	cmap.SetConvergePoint((lo + hi) / 2)
	pal := cmap.Palette(paletteSize)

	dc := draw.New(canvas)
	panels := draw.Crop(dc, 0, 0, barHeight, 0)
	bar := draw.Crop(dc, 0.3*figureWidth, -0.3*figureWidth, 0, barHeight-height)

	plots := f.panelPlots(pal, lo, hi)
	tiles := draw.Tiles{
		Rows:      len(plots),
		Cols:      len(plots[0]),
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Millimeter,
		PadBottom: vg.Millimeter,
		PadLeft:   vg.Millimeter,
		PadRight:  vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, panels)
	for r := range plots {
		for c := range plots[r] {
			plots[r][c].Draw(canvases[r][c])
		}
	}
	colorBar(cmap).Draw(bar)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.NewIOError("mkdir", filepath.Dir(path), err)
	}
	out, err := os.Create(path)
	if err != nil {
		return core.NewIOError("create", path, err)
	}
	defer out.Close()
	if _, err := canvas.WriteTo(out); err != nil {
		return core.NewIOError("write", path, err)
	}
	if err := out.Close(); err != nil {
		return core.NewIOError("close", path, err)
	}

	f.log.Info("figure saved", "path", path, "panels", len(f.panels), "vmin", lo, "vmax", hi)
	return nil
}

// panelPlots lays panels out as rows of projections. Rows with fewer views
// than the widest row are padded with blank plots.
func (f *Figure) panelPlots(pal palette.Palette, lo, hi float64) [][]*plot.Plot {
	cols := 0
	for _, p := range f.panels {
		if len(p.views) > cols {
			cols = len(p.views)
		}
	}
	colors := pal.Colors()

	plots := make([][]*plot.Plot, len(f.panels))
	for r, p := range f.panels {
		plots[r] = make([]*plot.Plot, cols)
		for c := range plots[r] {
			pl := plot.New()
			pl.HideAxes()
			plots[r][c] = pl
			if c >= len(p.views) {
				continue
			}
			hm := plotter.NewHeatMap(statmap.Project(p.volume, p.views[c], p.spec.Signed), pal)
			hm.Min, hm.Max = lo, hi
			hm.Underflow = colors[0]
			hm.Overflow = colors[len(colors)-1]
			pl.Add(hm)
		}
		plots[r][0].Title.Text = panelTitle(p)
	}
	return plots
}

func panelTitle(p panel) string {
	title := p.spec.Title
	if title == "" {
		title = p.name
	}
	if p.spec.Label == "" {
		return title
	}
	return fmt.Sprintf("%s   %s", p.spec.Label, title)
}

// colorBar draws the shared horizontal scale labelled in z units
func colorBar(cmap palette.ColorMap) *plot.Plot {
	p := plot.New()
	p.HideY()
	p.X.Label.Text = "z score"
	p.X.Padding = 0
	p.Add(&plotter.ColorBar{ColorMap: cmap})
	return p
}
