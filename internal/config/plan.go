package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"goale/domain/contrast"
	"goale/domain/core"
	"goale/domain/experiment"
	"goale/domain/group"
	"goale/ports"
)

// PlanFile is the YAML description of a contrast plan: where the table lives,
// which groups to export, which pairs to subtract and how to draw them
type PlanFile struct {
	Table       string                     `yaml:"table"`
	Groups      Groups                     `yaml:"groups"`
	Pairs       []contrast.PairSpec        `yaml:"pairs,omitempty"`
	ALE         contrast.ALEParams         `yaml:"ale"`
	Subtraction contrast.SubtractionParams `yaml:"subtraction"`
	Figure      FigureSpec                 `yaml:"figure,omitempty"`
	Report      string                     `yaml:"report,omitempty"`
}

// GroupEntry maps an export path to its selection predicate
type GroupEntry struct {
	Output    string
	Predicate string
}

// Groups is a YAML mapping whose declaration order is preserved
type Groups []GroupEntry

// FigureSpec describes the composite figure drawn after a run
type FigureSpec struct {
	Path        string      `yaml:"path,omitempty"`
	VMin        float64     `yaml:"vmin"`
	VMax        float64     `yaml:"vmax"`
	DisplayMode string      `yaml:"display_mode,omitempty"`
	Panels      []PanelSpec `yaml:"panels,omitempty"`
}

// PanelSpec names the map drawn in one figure row: a group or pair name
// from the plan, or a path to a NIfTI file
type PanelSpec struct {
	Map   string `yaml:"map"`
	Label string `yaml:"label,omitempty"`
	Title string `yaml:"title,omitempty"`
}

// UnmarshalYAML decodes a mapping of output path to predicate, in order
func (g *Groups) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: groups must be a mapping of output path to predicate", value.Line)
	}
	out := make(Groups, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var entry GroupEntry
		if err := value.Content[i].Decode(&entry.Output); err != nil {
			return err
		}
		if err := value.Content[i+1].Decode(&entry.Predicate); err != nil {
			return fmt.Errorf("group %s: %w", entry.Output, err)
		}
		out = append(out, entry)
	}
	*g = out
	return nil
}

// MarshalYAML encodes groups as an ordered mapping
func (g Groups) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range g {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Output},
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Predicate, Style: yaml.SingleQuotedStyle},
		)
	}
	return node, nil
}

// Figure colour bounds used when a plan sets none
const (
	DefaultVMin = 0
	DefaultVMax = 5
)

func newPlanFile() *PlanFile {
	return &PlanFile{
		ALE:         contrast.DefaultALEParams("results/supplement"),
		Subtraction: contrast.DefaultSubtractionParams("results/subtraction"),
		Figure:      FigureSpec{VMin: DefaultVMin, VMax: DefaultVMax},
	}
}

// DefaultPlan is the supplementary analysis: presentation modality,
// response modality and analysis software, each against its complement
func DefaultPlan() *PlanFile {
	p := newPlanFile()
	p.Table = "results/exps.json"
	p.Groups = Groups{
		{"results/ale/visual.txt", `modality_pres == "visual"`},
		{"results/ale/nvisual.txt", `modality_pres != "visual"`},
		{"results/ale/manual.txt", `modality_resp == "manual"`},
		{"results/ale/nmanual.txt", `modality_resp != "manual"`},
		{"results/ale/spm.txt", `software == "SPM"`},
		{"results/ale/nspm.txt", `software != "SPM"`},
	}
	// Condition minus complement, matching the <cond>_minus_n<cond>_z maps the
	// figure draws; the upstream subtraction list ran nvisual and nmanual first.
	p.Pairs = []contrast.PairSpec{
		{Minuend: "results/ale/visual.txt", Subtrahend: "results/ale/nvisual.txt"},
		{Minuend: "results/ale/manual.txt", Subtrahend: "results/ale/nmanual.txt"},
		{Minuend: "results/ale/spm.txt", Subtrahend: "results/ale/nspm.txt"},
	}
	p.Figure.Path = "results/figures/figsupp.pdf"
	p.Figure.DisplayMode = ports.DefaultDisplayMode
	p.Figure.Panels = []PanelSpec{
		{Map: "visual_minus_nvisual", Label: "A", Title: "Visual > auditory/audiovisual stimuli"},
		{Map: "manual_minus_nmanual", Label: "B", Title: "Manual > verbal/no response"},
		{Map: "spm_minus_nspm", Label: "C", Title: "SPM > other analysis software"},
	}
	p.Report = "results/report"
	return p
}

// LoadPlan reads a plan file. Unset parameters keep their defaults.
func LoadPlan(path string) (*PlanFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewIOError("read", path, err)
	}
	return ParsePlan(raw)
}

// ParsePlan decodes plan YAML. Unknown keys are rejected.
func ParsePlan(raw []byte) (*PlanFile, error) {
	p := newPlanFile()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return nil, core.NewConfigError(core.ErrConfiguration, "plan: %v", err)
	}
	if len(p.Groups) == 0 {
		return nil, core.NewConfigError(core.ErrConfiguration, "plan declares no groups")
	}
	return p, nil
}

// WritePlan encodes p as YAML at path
func WritePlan(p *PlanFile, path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return core.NewIOError("mkdir", dir, err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return core.NewIOError("write", path, err)
	}
	return nil
}

// Definitions parses every group predicate
func (p *PlanFile) Definitions() ([]group.Definition, error) {
	defs := make([]group.Definition, 0, len(p.Groups))
	for _, g := range p.Groups {
		def, err := group.NewDefinition(g.Output, g.Predicate)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", g.Output, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Build validates the plan against a loaded table
func (p *PlanFile) Build(table *experiment.Table) (*contrast.Plan, error) {
	defs, err := p.Definitions()
	if err != nil {
		return nil, err
	}
	return contrast.NewPlan(table, defs, p.Pairs, p.ALE, p.Subtraction)
}
