package ingest

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reliefmap/pcoder/internal/detect"
	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/tabular"
)

// municipalityBarangays are entries that stand for the whole unit of the
// column to their left rather than a unit of their own.
var municipalityBarangays = map[string]bool{
	"no breakdown":  true,
	"all barangays": true,
}

type levelColumn struct {
	level gazetteer.Level
	index int
}

// hierarchyRows flattens a column-based hierarchy (one column per level)
// into the row-per-unit layout the detector reads. A header row is emitted
// whenever an ancestor changes; its value is the sum of the leaf values
// below it so that accumulation validates the synthesized scopes.
func hierarchyRows(t *tabular.Table, data [][]string, opts Options, log *zap.Logger) ([]detect.RawRow, error) {
	var cols []levelColumn
	exclude := make(map[int]bool)
	for _, level := range gazetteer.Levels {
		name, ok := opts.LevelColumns[level]
		if !ok || name == "" {
			continue
		}
		i := t.Column(name)
		if i < 0 {
			return nil, eris.Errorf("ingest: %s column %q not found", level, name)
		}
		cols = append(cols, levelColumn{level: level, index: i})
		exclude[i] = true
	}

	value, err := valueColumn(t, data, opts.ValueColumn, exclude)
	if err != nil {
		return nil, err
	}
	if value < 0 {
		log.Warn("no validating value column; level detection runs without targets")
	}

	var (
		out  []detect.RawRow
		sums []*float64 // running totals of synthesized header rows, by out index
		prev = make([]string, len(cols))
		open = make([]int, len(cols)) // out index of the open header per depth, -1 if none
	)
	for i := range open {
		open[i] = -1
	}

	for _, row := range data {
		path := make([]string, len(cols))
		leaf := -1
		for d, c := range cols {
			path[d] = CleanLabel(tabular.Cell(row, c.index))
			if isNone(path[d]) {
				path[d] = ""
			}
			if path[d] != "" {
				leaf = d
			}
		}
		if leaf < 0 {
			continue
		}
		for leaf > 0 && municipalityBarangays[strings.ToLower(path[leaf])] {
			path[leaf] = ""
			leaf--
		}

		changed := false
		for d := 0; d < leaf; d++ {
			if !changed && path[d] == prev[d] && open[d] >= 0 {
				continue
			}
			changed = true
			open[d] = -1
			if path[d] == "" {
				continue
			}
			open[d] = len(out)
			out = append(out, detect.RawRow{Text: path[d], Seq: len(out), Hint: cols[d].level})
			sums = append(sums, nil)
		}
		for d := leaf; d < len(cols); d++ {
			open[d] = -1
		}
		copy(prev, path)

		r := detect.RawRow{Text: path[leaf], Seq: len(out), Hint: cols[leaf].level}
		if value >= 0 {
			if f, ok := ParseNumber(tabular.Cell(row, value)); ok {
				r.Value = &f
				for d := 0; d < leaf; d++ {
					if j := open[d]; j >= 0 {
						sums[j] = add(sums[j], f)
					}
				}
			}
		}
		out = append(out, r)
		sums = append(sums, nil)
	}

	for i, s := range sums {
		if s != nil {
			out[i].Value = s
		}
	}
	return out, nil
}

func add(p *float64, f float64) *float64 {
	if p == nil {
		return &f
	}
	v := *p + f
	return &v
}
