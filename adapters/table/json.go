package table

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"goale/domain/core"
	"goale/domain/experiment"
)

// readJSON accepts pandas "records" (array of row objects) and "columns"
// ({"col": {"0": v, ...}}) orientations
func readJSON(path string) (*experiment.Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewIOError("read", path, err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, core.NewIOError("parse", path, fmt.Errorf("invalid JSON"))
	}

	doc := gjson.ParseBytes(raw)
	var rows []gjson.Result
	switch {
	case doc.IsArray():
		rows = doc.Array()
	case doc.IsObject():
		rows, err = columnsToRows(doc)
		if err != nil {
			return nil, core.NewIOError("parse", path, err)
		}
	default:
		return nil, core.NewIOError("parse", path, fmt.Errorf("expected an array or object at top level"))
	}

	exps := make([]experiment.Experiment, 0, len(rows))
	columns := map[string]bool{}
	for i, row := range rows {
		exp, err := recordToExperiment(row, columns)
		if err != nil {
			return nil, core.NewIOError("parse", fmt.Sprintf("%s row %d", path, i), err)
		}
		exps = append(exps, exp)
	}
	return experiment.NewTable(exps, keys(columns)...)
}

// columnsToRows pivots {"col": {"<row>": v}} into row objects ordered by
// numeric row label
func columnsToRows(doc gjson.Result) ([]gjson.Result, error) {
	cells := map[string]map[string]string{}
	var labels []string
	seen := map[string]bool{}
	var err error

	doc.ForEach(func(col, values gjson.Result) bool {
		if !values.IsObject() {
			err = fmt.Errorf("column %q is not an object of rows", col.String())
			return false
		}
		values.ForEach(func(label, v gjson.Result) bool {
			l := label.String()
			if !seen[l] {
				seen[l] = true
				labels = append(labels, l)
			}
			if cells[l] == nil {
				cells[l] = map[string]string{}
			}
			cells[l][col.String()] = v.Raw
			return true
		})
		return true
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(labels, func(i, j int) bool {
		a, errA := strconv.Atoi(labels[i])
		b, errB := strconv.Atoi(labels[j])
		if errA != nil || errB != nil {
			return labels[i] < labels[j]
		}
		return a < b
	})

	rows := make([]gjson.Result, 0, len(labels))
	for _, l := range labels {
		var obj strings.Builder
		obj.WriteByte('{')
		for i, col := range sortedKeys(cells[l]) {
			if i > 0 {
				obj.WriteByte(',')
			}
			obj.WriteString(strconv.Quote(col))
			obj.WriteByte(':')
			obj.WriteString(cells[l][col])
		}
		obj.WriteByte('}')
		rows = append(rows, gjson.Parse(obj.String()))
	}
	return rows, nil
}

func recordToExperiment(row gjson.Result, columns map[string]bool) (experiment.Experiment, error) {
	if !row.IsObject() {
		return experiment.Experiment{}, fmt.Errorf("row is not an object")
	}

	var (
		id       string
		subjects int
		peaks    []experiment.Peak
		fields   = map[string]string{}
		err      error
	)
	row.ForEach(func(key, value gjson.Result) bool {
		name := columnName(key.String())
		switch {
		case isIDColumn(name):
			if id == "" || name == ColumnExperiment {
				id = value.String()
			}
		case isSubjectsColumn(name):
			subjects = int(value.Int())
		case name == ColumnPeaks:
			peaks, err = parsePeaks(value)
		default:
			if value.IsArray() || value.IsObject() {
				return true
			}
			columns[name] = true
			fields[name] = scalar(value)
		}
		return err == nil
	})
	if err != nil {
		return experiment.Experiment{}, err
	}

	eid, err := core.ParseExperimentID(id)
	if err != nil {
		return experiment.Experiment{}, fmt.Errorf("no %q column", ColumnExperiment)
	}
	return experiment.New(eid, fields, subjects, peaks), nil
}

func parsePeaks(value gjson.Result) ([]experiment.Peak, error) {
	if value.Type == gjson.Null {
		return nil, nil
	}
	if !value.IsArray() {
		return nil, fmt.Errorf("peaks must be a list of [x, y, z]")
	}
	var (
		peaks []experiment.Peak
		err   error
	)
	value.ForEach(func(_, p gjson.Result) bool {
		xyz := p.Array()
		if len(xyz) != 3 {
			err = fmt.Errorf("peak %s does not have 3 coordinates", p.Raw)
			return false
		}
		peaks = append(peaks, experiment.Peak{X: xyz[0].Float(), Y: xyz[1].Float(), Z: xyz[2].Float()})
		return true
	})
	return peaks, err
}

func scalar(v gjson.Result) string {
	if v.Type == gjson.Null {
		return ""
	}
	return v.String()
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
