// Package table loads experiment tables from pandas JSON exports and from
// one-row-per-peak spreadsheets.
package table

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"goale/domain/core"
	"goale/domain/experiment"
	"goale/internal"
)

// Column names with a fixed meaning; every other column is metadata
const (
	ColumnExperiment = "experiment"
	ColumnID         = "id"
	ColumnSubjects   = "n"
	ColumnSubjects2  = "subjects"
	ColumnPeaks      = "peaks"
	ColumnX          = "x"
	ColumnY          = "y"
	ColumnZ          = "z"
)

// Reader implements ports.TableReader for .json, .xlsx and .csv files
type Reader struct {
	log *internal.Logger
}

// NewReader creates a table reader
func NewReader(log *internal.Logger) *Reader {
	if log == nil {
		log = internal.NewNopLogger()
	}
	return &Reader{log: log.Named("table")}
}

// ReadTable reads the file at path, choosing the format by extension
func (r *Reader) ReadTable(ctx context.Context, path string) (*experiment.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, core.NewIOError("stat", path, err)
	}

	start := time.Now()
	var (
		table *experiment.Table
		err   error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		table, err = readJSON(path)
	case ".xlsx":
		table, err = readExcel(path)
	case ".csv":
		table, err = readCSV(path)
	default:
		return nil, core.NewConfigError(core.ErrUnsupportedFormat, "experiment table %s: extension %q", path, ext)
	}
	if err != nil {
		return nil, err
	}

	r.log.Info("experiment table loaded",
		"path", path,
		"experiments", table.Len(),
		"fields", strings.Join(table.Schema(), ","),
		"elapsed", time.Since(start))
	return table, nil
}

// columnName trims a header. Fixed-meaning columns match in any case and come
// back lower case; metadata names keep their case in every format.
func columnName(header string) string {
	name := strings.TrimSpace(header)
	switch lower := strings.ToLower(name); lower {
	case ColumnExperiment, ColumnID, ColumnSubjects, ColumnSubjects2, ColumnPeaks, ColumnX, ColumnY, ColumnZ:
		return lower
	}
	return name
}

func isIDColumn(name string) bool {
	return name == ColumnExperiment || name == ColumnID
}

func isSubjectsColumn(name string) bool {
	return name == ColumnSubjects || name == ColumnSubjects2
}
