package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"goale/domain/core"
	"goale/domain/statmap"
	"goale/internal"
	"goale/ports"
)

const (
	niftiSuffix           = ".nii"
	compressedNiftiSuffix = ".nii.gz"
)

// FigureRequest describes a composite figure: panels are drawn top to bottom
// in declared order on one colour scale
type FigureRequest struct {
	Path        string
	VMin        float64
	VMax        float64
	DisplayMode string
	Panels      []PanelRequest
}

// PanelRequest names the map behind a panel: a unit produced in this run or
// a path to a NIfTI z map
type PanelRequest struct {
	Map   string
	Label string
	Title string
}

// FigureService composes figures from statistical maps
type FigureService struct {
	renderer ports.Renderer
	maps     ports.MapReader
	log      *internal.Logger
}

// NewFigureService creates a figure service. maps may be nil when every
// panel refers to an in-memory map.
func NewFigureService(renderer ports.Renderer, maps ports.MapReader, log *internal.Logger) *FigureService {
	if log == nil {
		log = internal.NewNopLogger()
	}
	return &FigureService{renderer: renderer, maps: maps, log: log.Named("figure")}
}

// Validate checks a request before any map is loaded
func (r FigureRequest) Validate() error {
	if strings.TrimSpace(r.Path) == "" {
		return core.NewConfigError(core.ErrInvalidParameter, "figure path is empty")
	}
	if len(r.Panels) == 0 {
		return core.NewConfigError(core.ErrInvalidParameter, "figure %s has no panels", r.Path)
	}
	if r.VMax <= r.VMin {
		return core.NewConfigError(core.ErrInvalidParameter, "figure vmax %g must exceed vmin %g", r.VMax, r.VMin)
	}
	ext := strings.ToLower(filepath.Ext(r.Path))
	if ext != ".pdf" && ext != ".svg" {
		return core.NewConfigError(core.ErrUnsupportedFormat, "figure %s: want .pdf or .svg", r.Path)
	}
	for i, p := range r.Panels {
		if strings.TrimSpace(p.Map) == "" {
			return core.NewConfigError(core.ErrInvalidParameter, "figure panel %d names no map", i+1)
		}
	}
	return nil
}

// IsMapFile reports whether a panel reference is a file path rather than a
// unit name
func IsMapFile(ref string) bool {
	return strings.HasSuffix(ref, niftiSuffix) || strings.HasSuffix(ref, compressedNiftiSuffix)
}

// Compose draws the figure. Panels naming a unit are looked up in known;
// file references are read through the map reader.
func (s *FigureService) Compose(ctx context.Context, req FigureRequest, known map[string]*statmap.Map) error {
	if err := req.Validate(); err != nil {
		return err
	}
	mode := req.DisplayMode
	if mode == "" {
		mode = ports.DefaultDisplayMode
	}

	fig := s.renderer.NewFigure(req.VMin, req.VMax)
	for _, p := range req.Panels {
		m, err := s.resolve(ctx, p.Map, known)
		if err != nil {
			return fmt.Errorf("panel %s: %w", p.Label, err)
		}
		panel := ports.Panel{
			Label:       p.Label,
			Title:       p.Title,
			DisplayMode: mode,
			Signed:      m.Kind == statmap.KindSubtraction || hasNegative(m.Z),
		}
		if err := fig.AddPanel(m, panel); err != nil {
			return fmt.Errorf("panel %s: %w", p.Label, err)
		}
	}

	if err := fig.Save(ctx, req.Path); err != nil {
		return err
	}
	s.log.Info("figure written", "path", req.Path, "panels", len(req.Panels))
	return nil
}

func (s *FigureService) resolve(ctx context.Context, ref string, known map[string]*statmap.Map) (*statmap.Map, error) {
	if m, ok := known[ref]; ok {
		return m, nil
	}
	if !IsMapFile(ref) {
		return nil, core.NewConfigError(core.ErrUnregisteredExport, "no map named %q", ref)
	}
	if s.maps == nil {
		return nil, core.NewConfigError(core.ErrConfiguration, "cannot read %s: no map reader", ref)
	}
	v, err := s.maps.ReadMap(ctx, ref)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(ref), ".gz"), niftiSuffix)
	name = strings.TrimSuffix(name, "_z")
	return &statmap.Map{Name: name, Z: v, Files: map[string]string{statmap.FileZ: ref}}, nil
}

func hasNegative(v statmap.Volume) bool {
	for _, x := range v.Data {
		if x < 0 {
			return true
		}
	}
	return false
}
