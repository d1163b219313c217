package run

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"goale/domain/core"
	apperrors "goale/internal/errors"
)

// UnitKind is the kind of work a unit performs
type UnitKind string

const (
	UnitExport      UnitKind = "export"
	UnitALE         UnitKind = "ale"
	UnitSubtraction UnitKind = "subtraction"
	UnitFigure      UnitKind = "figure"
)

// Status of a finished unit
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Outcome records how one group, pair or figure fared
type Outcome struct {
	Unit      string            `json:"unit" db:"unit"`
	Kind      UnitKind          `json:"kind" db:"kind"`
	Status    Status            `json:"status" db:"status"`
	ErrorCode string            `json:"error_code,omitempty" db:"error_code"`
	Error     string            `json:"error,omitempty" db:"error"`
	Files     map[string]string `json:"files,omitempty" db:"-"`
	Duration  time.Duration     `json:"duration" db:"duration_ns"`

	err error
}

// Succeeded builds a successful outcome
func Succeeded(kind UnitKind, unit string, files map[string]string, d time.Duration) Outcome {
	return Outcome{Unit: unit, Kind: kind, Status: StatusSucceeded, Files: files, Duration: d}
}

// Failed builds a failed outcome, classifying err into an error code
func Failed(kind UnitKind, unit string, err error, d time.Duration) Outcome {
	status := StatusFailed
	if errors.Is(err, core.ErrDependencyFailed) {
		status = StatusSkipped
	}
	return Outcome{
		Unit:      unit,
		Kind:      kind,
		Status:    status,
		ErrorCode: Classify(err),
		Error:     err.Error(),
		Duration:  d,
		err:       err,
	}
}

// Err returns the original error of a failed unit, if still attached
func (o Outcome) Err() error { return o.err }

// Classify maps an error onto the pipeline's error taxonomy
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case core.IsConfigError(err):
		return apperrors.CodeConfigInvalid
	case core.IsDegenerateError(err):
		return apperrors.CodeDegenerateInput
	case core.IsIOError(err):
		return apperrors.CodeIOError
	case errors.Is(err, core.ErrDependencyFailed):
		return apperrors.CodeDependencyFailed
	case apperrors.IsAppError(err):
		return apperrors.GetCode(err)
	}
	return apperrors.CodeBackendError
}

// Report is the end-of-run summary: which units succeeded and which did not
type Report struct {
	Manifest *Manifest `json:"manifest"`
	Outcomes []Outcome `json:"outcomes"`
}

// Add appends an outcome
func (r *Report) Add(o Outcome) { r.Outcomes = append(r.Outcomes, o) }

// Succeeded lists units that finished
func (r *Report) Succeeded() []Outcome { return r.filter(StatusSucceeded) }

// Failed lists units that failed or were skipped
func (r *Report) Failed() []Outcome {
	return append(r.filter(StatusFailed), r.filter(StatusSkipped)...)
}

// Outcome finds the outcome of a unit
func (r *Report) Outcome(kind UnitKind, unit string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Kind == kind && o.Unit == unit {
			return o, true
		}
	}
	return Outcome{}, false
}

func (r *Report) filter(s Status) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == s {
			out = append(out, o)
		}
	}
	return out
}

// Sort orders outcomes by kind, then unit, for stable reports
func (r *Report) Sort() {
	rank := map[UnitKind]int{UnitExport: 0, UnitALE: 1, UnitSubtraction: 2, UnitFigure: 3}
	sort.SliceStable(r.Outcomes, func(i, j int) bool {
		a, b := r.Outcomes[i], r.Outcomes[j]
		if rank[a.Kind] != rank[b.Kind] {
			return rank[a.Kind] < rank[b.Kind]
		}
		return a.Unit < b.Unit
	})
}

// Err is non-nil when any unit failed
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, len(failed))
	for i, o := range failed {
		names[i] = fmt.Sprintf("%s %s (%s)", o.Kind, o.Unit, o.Status)
	}
	return apperrors.New(apperrors.CodeRunFailed,
		fmt.Sprintf("%d of %d units did not succeed: %s", len(failed), len(r.Outcomes), strings.Join(names, ", ")))
}
