package experiment

import (
	"fmt"
	"sort"
	"strings"

	"goale/domain/core"
)

// Table is the ordered, immutable set of experiments a run works on.
// No two experiments share an identifier.
type Table struct {
	experiments []Experiment
	index       map[core.ExperimentID]int
	schema      map[string]struct{}
}

// NewTable builds a table, rejecting duplicate identifiers. The schema is the
// union of the declared columns and every field carried by an experiment.
func NewTable(experiments []Experiment, columns ...string) (*Table, error) {
	t := &Table{
		experiments: make([]Experiment, 0, len(experiments)),
		index:       make(map[core.ExperimentID]int, len(experiments)),
		schema:      make(map[string]struct{}),
	}
	for _, c := range columns {
		if c = strings.TrimSpace(c); c != "" {
			t.schema[c] = struct{}{}
		}
	}
	for _, e := range experiments {
		if e.ID() == "" {
			return nil, core.NewConfigError(core.ErrConfiguration, "experiment at position %d has no id", len(t.experiments))
		}
		if prev, dup := t.index[e.ID()]; dup {
			return nil, core.NewConfigError(core.ErrDuplicateExperiment, "%q at positions %d and %d", e.ID(), prev, len(t.experiments))
		}
		t.index[e.ID()] = len(t.experiments)
		t.experiments = append(t.experiments, e)
		for name := range e.fields {
			t.schema[name] = struct{}{}
		}
	}
	return t, nil
}

// Len returns the number of experiments
func (t *Table) Len() int { return len(t.experiments) }

// At returns the experiment at position i
func (t *Table) At(i int) Experiment { return t.experiments[i] }

// Position returns the table position of an experiment, or -1
func (t *Table) Position(id core.ExperimentID) int {
	if i, ok := t.index[id]; ok {
		return i
	}
	return -1
}

// Experiments returns the experiments in table order
func (t *Table) Experiments() []Experiment {
	out := make([]Experiment, len(t.experiments))
	copy(out, t.experiments)
	return out
}

// IDs returns the identifiers in table order
func (t *Table) IDs() []core.ExperimentID {
	ids := make([]core.ExperimentID, len(t.experiments))
	for i, e := range t.experiments {
		ids[i] = e.ID()
	}
	return ids
}

// HasField reports whether the schema contains a metadata field
func (t *Table) HasField(name string) bool {
	_, ok := t.schema[name]
	return ok
}

// Schema returns the sorted metadata field names
func (t *Table) Schema() []string {
	names := make([]string, 0, len(t.schema))
	for k := range t.schema {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Hash fingerprints the table content: ids, metadata, sample sizes and peaks in order
func (t *Table) Hash() core.TableHash {
	var b strings.Builder
	for _, e := range t.experiments {
		b.WriteString(e.ID().String())
		b.WriteString("|")
		for _, name := range e.FieldNames() {
			fmt.Fprintf(&b, "%s=%s;", name, e.fields[name])
		}
		fmt.Fprintf(&b, "|n=%d|", e.subjects)
		for _, p := range e.peaks {
			fmt.Fprintf(&b, "%g,%g,%g;", p.X, p.Y, p.Z)
		}
		b.WriteString("\n")
	}
	return core.TableHash(core.NewHash([]byte(b.String())))
}
