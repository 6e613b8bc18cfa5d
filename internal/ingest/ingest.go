// Package ingest turns extracted report tables into ordered RawRow
// sequences: it picks the label and validating value columns, cleans
// numbers and labels, and drops page-break artifacts.
package ingest

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reliefmap/pcoder/internal/detect"
	"github.com/reliefmap/pcoder/internal/engine"
	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/tabular"
)

// Options selects and shapes the columns of an extracted table.
type Options struct {
	// LabelColumn names the location column. Empty selects the first.
	LabelColumn string
	// ValueColumn names the validating numeric column. Empty selects the
	// first numeric column whose values are all non-zero.
	ValueColumn string
	// LevelColumns maps levels to the columns of a column-based hierarchy
	// (one column per level). When set, LabelColumn is ignored and rows
	// carry level hints.
	LevelColumns map[gazetteer.Level]string
	// HeaderRows is the number of stacked header rows, including the
	// table header. Values above 1 merge them into one header.
	HeaderRows int
}

// labelReplacements are whole-label substitutions applied while cleaning.
var labelReplacements = map[string]string{
	"PLGU": "Provincial LGU",
}

// Load reads a CSV, TSV or XLSX table and converts it to engine input.
func Load(ctx context.Context, path string, topts tabular.Options, opts Options) (engine.Input, error) {
	t, err := tabular.ReadFile(ctx, path, topts)
	if err != nil {
		return engine.Input{}, eris.Wrapf(err, "ingest: read %s", path)
	}
	rows, err := Rows(t, opts)
	if err != nil {
		return engine.Input{}, eris.Wrapf(err, "ingest: %s", path)
	}
	return engine.Input{Name: t.Name, Rows: rows}, nil
}

// Rows converts t into RawRows numbered from 0 in table order.
func Rows(t *tabular.Table, opts Options) ([]detect.RawRow, error) {
	log := zap.L().With(zap.String("component", "ingest"), zap.String("table", t.Name))

	if opts.HeaderRows > 1 {
		t = mergeHeaderRows(t, opts.HeaderRows)
	}
	data := dropArtifacts(t.Rows)

	if len(opts.LevelColumns) > 0 {
		return hierarchyRows(t, data, opts, log)
	}

	label := 0
	if opts.LabelColumn != "" {
		label = t.Column(opts.LabelColumn)
		if label < 0 {
			return nil, eris.Errorf("ingest: label column %q not found", opts.LabelColumn)
		}
	}
	value, err := valueColumn(t, data, opts.ValueColumn, map[int]bool{label: true})
	if err != nil {
		return nil, err
	}
	if value < 0 {
		log.Warn("no validating value column; level detection runs without targets")
	} else {
		log.Debug("value column selected", zap.String("column", columnName(t, value)))
	}

	out := make([]detect.RawRow, 0, len(data))
	for _, row := range data {
		text := CleanLabel(tabular.Cell(row, label))
		if isNone(text) {
			continue
		}
		r := detect.RawRow{Text: text, Seq: len(out)}
		if value >= 0 {
			if f, ok := ParseNumber(tabular.Cell(row, value)); ok {
				r.Value = &f
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// valueColumn resolves the named value column, or picks one when name is
// empty. It returns -1 when no column qualifies.
func valueColumn(t *tabular.Table, data [][]string, name string, exclude map[int]bool) (int, error) {
	if name != "" {
		i := t.Column(name)
		if i < 0 {
			return -1, eris.Errorf("ingest: value column %q not found", name)
		}
		return i, nil
	}

	width := len(t.Header)
	for _, row := range data {
		width = max(width, len(row))
	}
	for col := 0; col < width; col++ {
		if exclude[col] {
			continue
		}
		if numericNonZero(data, col) {
			return col, nil
		}
	}
	return -1, nil
}

// numericNonZero reports whether at least 90% of the column's cells are
// numbers and none of them is zero.
func numericNonZero(data [][]string, col int) bool {
	if len(data) == 0 {
		return false
	}
	var parsed, failed int
	for _, row := range data {
		f, ok := ParseNumber(tabular.Cell(row, col))
		if !ok {
			failed++
			continue
		}
		if f == 0 {
			return false
		}
		parsed++
	}
	return parsed > 0 && float64(failed)/float64(len(data)) < 0.1
}

// CleanLabel trims a label, folds embedded line breaks and applies the
// whole-label replacements.
func CleanLabel(s string) string {
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, "\r", " ")), " ")
	if r, ok := labelReplacements[s]; ok {
		return r
	}
	return s
}

func isNone(s string) bool {
	return strings.EqualFold(s, "none") || strings.EqualFold(s, "nan")
}

// dropArtifacts removes rows with no content at all.
func dropArtifacts(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		for _, c := range row {
			if v := strings.TrimSpace(c); v != "" && !isNone(v) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// mergeHeaderRows folds the first n rows (the header plus n-1 data rows)
// into one header. Within each header row a label extends rightward over
// empty cells; each column's labels are then joined with "_".
func mergeHeaderRows(t *tabular.Table, n int) *tabular.Table {
	extra := n - 1
	if extra > len(t.Rows) {
		extra = len(t.Rows)
	}
	stack := append([][]string{t.Header}, t.Rows[:extra]...)

	width := 0
	for _, r := range stack {
		width = max(width, len(r))
	}
	header := make([]string, width)
	for _, r := range stack {
		carry := ""
		for col := 0; col < width; col++ {
			cell := tabular.Cell(r, col)
			if cell != "" && !isNone(cell) {
				carry = cell
			}
			if carry == "" {
				continue
			}
			if header[col] == "" {
				header[col] = carry
			} else {
				header[col] += "_" + carry
			}
		}
	}
	return &tabular.Table{Name: t.Name, Header: header, Rows: t.Rows[extra:]}
}

func columnName(t *tabular.Table, i int) string {
	if i >= 0 && i < len(t.Header) {
		return t.Header[i]
	}
	return ""
}
