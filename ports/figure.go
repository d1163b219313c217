package ports

import (
	"context"

	"goale/domain/statmap"
)

// DefaultDisplayMode draws left sagittal, coronal, right sagittal and axial
// views
const DefaultDisplayMode = "lyrz"

// Panel describes one glass-brain row of a composite figure
type Panel struct {
	Label       string // panel letter, e.g. "A"
	Title       string
	DisplayMode string // view letters, DefaultDisplayMode when empty
	Signed      bool
}

// FigureBuilder accumulates panels in order and renders them once, on a
// shared colour scale
type FigureBuilder interface {
	AddPanel(m *statmap.Map, p Panel) error
	Save(ctx context.Context, path string) error
}

// Renderer creates figure builders
type Renderer interface {
	NewFigure(vmin, vmax float64) FigureBuilder
}
