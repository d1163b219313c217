package table

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"goale/domain/core"
	"goale/domain/experiment"
)

// readExcel reads one-row-per-peak data from Sheet1, or the first sheet
// when the workbook has no Sheet1
func readExcel(path string) (*experiment.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, core.NewIOError("open", path, err)
	}
	defer f.Close()

	sheet := "Sheet1"
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, core.NewIOError("read", path, fmt.Errorf("workbook has no sheets"))
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, core.NewIOError("read", path+":"+sheet, err)
	}
	return processRows(path, rows)
}

// readCSV reads one-row-per-peak data from a comma-separated file
func readCSV(path string) (*experiment.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, core.NewIOError("open", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, core.NewIOError("read", path, err)
	}
	return processRows(path, rows)
}

type pending struct {
	id       core.ExperimentID
	subjects int
	fields   map[string]string
	peaks    []experiment.Peak
}

// processRows groups peak rows by experiment in first-seen order. Metadata
// and sample size come from each experiment's first row.
func processRows(path string, rows [][]string) (*experiment.Table, error) {
	if len(rows) < 1 {
		return nil, core.NewIOError("parse", path, fmt.Errorf("file must have a header row"))
	}

	headers := make([]string, len(rows[0]))
	col := map[string]int{}
	for i, h := range rows[0] {
		headers[i] = columnName(h)
		if _, dup := col[headers[i]]; !dup {
			col[headers[i]] = i
		}
	}
	idCol, ok := col[ColumnExperiment]
	if !ok {
		if idCol, ok = col[ColumnID]; !ok {
			return nil, core.NewConfigError(core.ErrConfiguration, "%s: no %q column", path, ColumnExperiment)
		}
	}
	for _, c := range []string{ColumnX, ColumnY, ColumnZ} {
		if _, ok := col[c]; !ok {
			return nil, core.NewConfigError(core.ErrConfiguration, "%s: no %q column", path, c)
		}
	}

	var metadata []string
	for _, h := range headers {
		if h == "" || isIDColumn(h) || isSubjectsColumn(h) || h == ColumnX || h == ColumnY || h == ColumnZ {
			continue
		}
		metadata = append(metadata, h)
	}

	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var order []*pending
	byID := map[core.ExperimentID]*pending{}
	for n, row := range rows[1:] {
		line := n + 2
		if blank(row) {
			continue
		}
		var raw string
		if idCol < len(row) {
			raw = row[idCol]
		}
		id, err := core.ParseExperimentID(raw)
		if err != nil {
			return nil, core.NewIOError("parse", fmt.Sprintf("%s:%d", path, line), err)
		}

		exp, seen := byID[id]
		if !seen {
			exp = &pending{id: id, fields: make(map[string]string, len(metadata))}
			for _, m := range metadata {
				exp.fields[m] = cell(row, m)
			}
			subjects := cell(row, ColumnSubjects)
			if subjects == "" {
				subjects = cell(row, ColumnSubjects2)
			}
			if subjects != "" {
				v, err := strconv.ParseFloat(subjects, 64)
				if err != nil {
					return nil, core.NewIOError("parse", fmt.Sprintf("%s:%d", path, line), fmt.Errorf("bad sample size %q", subjects))
				}
				exp.subjects = int(v)
			}
			byID[id] = exp
			order = append(order, exp)
		}

		var xyz [3]float64
		for i, c := range []string{ColumnX, ColumnY, ColumnZ} {
			v, err := strconv.ParseFloat(cell(row, c), 64)
			if err != nil {
				return nil, core.NewIOError("parse", fmt.Sprintf("%s:%d", path, line), fmt.Errorf("bad %s coordinate %q", c, cell(row, c)))
			}
			xyz[i] = v
		}
		exp.peaks = append(exp.peaks, experiment.Peak{X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}

	exps := make([]experiment.Experiment, len(order))
	for i, p := range order {
		exps[i] = experiment.New(p.id, p.fields, p.subjects, p.peaks)
	}
	return experiment.NewTable(exps, metadata...)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
