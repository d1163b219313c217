package experiment

import (
	"fmt"
	"sort"

	"goale/domain/core"
)

// Peak is one reported activation maximum in MNI space (mm)
type Peak struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// String renders the peak as a tab-separated coordinate triple
func (p Peak) String() string {
	return fmt.Sprintf("%g\t%g\t%g", p.X, p.Y, p.Z)
}

// Experiment is one published contrast with its metadata and peaks.
// Values are immutable once constructed; accessors hand out copies.
type Experiment struct {
	id       core.ExperimentID
	fields   map[string]string
	subjects int
	peaks    []Peak
}

// New creates an experiment, copying fields and peaks
func New(id core.ExperimentID, fields map[string]string, subjects int, peaks []Peak) Experiment {
	f := make(map[string]string, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	p := make([]Peak, len(peaks))
	copy(p, peaks)
	return Experiment{id: id, fields: f, subjects: subjects, peaks: p}
}

// ID returns the experiment identifier
func (e Experiment) ID() core.ExperimentID { return e.id }

// Subjects returns the sample size reported by the experiment
func (e Experiment) Subjects() int { return e.subjects }

// Field returns a metadata value and whether the experiment carries it
func (e Experiment) Field(name string) (string, bool) {
	v, ok := e.fields[name]
	return v, ok
}

// Fields returns a copy of the metadata mapping
func (e Experiment) Fields() map[string]string {
	out := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// FieldNames returns the sorted metadata field names
func (e Experiment) FieldNames() []string {
	names := make([]string, 0, len(e.fields))
	for k := range e.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Peaks returns a copy of the peak coordinates in reported order
func (e Experiment) Peaks() []Peak {
	out := make([]Peak, len(e.peaks))
	copy(out, e.peaks)
	return out
}

// PeakCount returns the number of peaks without copying
func (e Experiment) PeakCount() int { return len(e.peaks) }
