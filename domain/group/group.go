// Package group materializes analysis groups from an experiment table.
package group

import (
	"path/filepath"
	"strings"

	"goale/domain/core"
	"goale/domain/experiment"
	"goale/domain/predicate"
)

// Definition is a named predicate. Output is the path the group's peaks are
// exported to; Name defaults to the output file's base name.
type Definition struct {
	Name      core.GroupName
	Output    string
	Predicate predicate.Predicate
}

// NewDefinition parses expr and derives the group name from output
func NewDefinition(output, expr string) (Definition, error) {
	if strings.TrimSpace(output) == "" {
		return Definition{}, core.NewConfigError(core.ErrConfiguration, "group output path is empty for %q", expr)
	}
	p, err := predicate.Parse(expr)
	if err != nil {
		return Definition{}, err
	}
	return Definition{Name: NameFromPath(output), Output: output, Predicate: p}, nil
}

// NameFromPath turns "../results/ale/visual.txt" into "visual"
func NameFromPath(path string) core.GroupName {
	base := filepath.Base(path)
	return core.GroupName(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Negated returns the complement definition written next to the original
// output as "n<name>", the naming the supplement analyses use
func (d Definition) Negated() Definition {
	name := "n" + string(d.Name)
	out := filepath.Join(filepath.Dir(d.Output), name+filepath.Ext(d.Output))
	return Definition{Name: core.GroupName(name), Output: out, Predicate: predicate.Negate(d.Predicate)}
}

// Group is the ordered subset of a table matching a definition
type Group struct {
	Definition  Definition
	Experiments []experiment.Experiment
}

// Name returns the definition name
func (g Group) Name() core.GroupName { return g.Definition.Name }

// Len returns the number of experiments in the group
func (g Group) Len() int { return len(g.Experiments) }

// IsEmpty reports a zero-length group
func (g Group) IsEmpty() bool { return len(g.Experiments) == 0 }

// IDs returns the member identifiers in table order
func (g Group) IDs() []core.ExperimentID {
	ids := make([]core.ExperimentID, len(g.Experiments))
	for i, e := range g.Experiments {
		ids[i] = e.ID()
	}
	return ids
}

// PeakCount returns the total number of foci across members
func (g Group) PeakCount() int {
	n := 0
	for _, e := range g.Experiments {
		n += e.PeakCount()
	}
	return n
}
