// Package report exports resolved tables as CSV, XLSX or JSON and renders
// the per-level match summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/reliefmap/pcoder/internal/detect"
	"github.com/reliefmap/pcoder/internal/engine"
	"github.com/reliefmap/pcoder/internal/resolve"
	"github.com/reliefmap/pcoder/internal/tabular"
)

// Format is an output encoding.
type Format string

// Output formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatJSON:
		return f, nil
	}
	return "", eris.Errorf("report: unknown format %q", s)
}

// FormatFromPath infers the format from a file extension, defaulting to CSV.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX
	case ".json":
		return FormatJSON
	}
	return FormatCSV
}

// rowColumns defines the ordered resolved-row output columns.
var rowColumns = []string{
	"table",
	"seq",
	"label",
	"value",
	"level",
	"huc",
	"anomaly",
	"adm0_pcode",
	"adm1_pcode",
	"adm2_pcode",
	"adm3_pcode",
	"adm4_pcode",
	"matched_name",
	"score",
	"outcome",
	"ambiguous",
}

// summaryColumns defines the ordered summary output columns.
var summaryColumns = []string{
	"table",
	"level",
	"total",
	"matched",
	"overridden",
	"unmatched",
	"ambiguous",
	"mean_score",
	"match_rate",
}

// RowsTable lays out a resolved table's rows, one line per row. Codes come
// from the filled paths.
func RowsTable(res engine.Result) *tabular.Table {
	t := &tabular.Table{Name: res.Name, Header: rowColumns}
	for i, r := range res.Rows {
		path := r.Path
		if i < len(res.Paths) {
			path = res.Paths[i]
		}
		t.Rows = append(t.Rows, buildRow(res.Name, r, path))
	}
	return t
}

func buildRow(table string, r resolve.ResolvedRow, path resolve.Path) []string {
	name := ""
	if r.Entity != nil {
		name = r.Entity.Name
	}
	codes := path.Codes()
	return []string{
		table,                   // table
		strconv.Itoa(r.Seq),     // seq
		r.Text,                  // label
		formatValue(r.Value),    // value
		r.Level.String(),        // level
		formatBool(r.HUC),       // huc
		anomalies(r),            // anomaly
		codes[0],                // adm0_pcode
		codes[1],                // adm1_pcode
		codes[2],                // adm2_pcode
		codes[3],                // adm3_pcode
		codes[4],                // adm4_pcode
		name,                    // matched_name
		strconv.Itoa(r.Score),   // score
		string(r.Outcome),       // outcome
		formatBool(r.Ambiguous), // ambiguous
	}
}

// SummaryTable lays out per-level statistics for each table, followed by
// an "all" line per table.
func SummaryTable(results []engine.Result) *tabular.Table {
	t := &tabular.Table{Name: "summary", Header: summaryColumns}
	for _, res := range results {
		for _, st := range res.Summary.Levels {
			t.Rows = append(t.Rows, summaryRow(res.Name, st.Level.String(), st))
		}
		t.Rows = append(t.Rows, summaryRow(res.Name, "all", res.Summary.Overall))
	}
	return t
}

func summaryRow(table, level string, st resolve.LevelStats) []string {
	return []string{
		table,
		level,
		strconv.Itoa(st.Total),
		strconv.Itoa(st.Matched),
		strconv.Itoa(st.Overridden),
		strconv.Itoa(st.Unmatched),
		strconv.Itoa(st.Ambiguous),
		strconv.FormatFloat(st.MeanScore, 'f', 1, 64),
		strconv.FormatFloat(st.MatchRate, 'f', 3, 64),
	}
}

// Write encodes results in the given format. CSV holds the rows of every
// table in one sheet; XLSX adds a sheet per table and a summary sheet.
func Write(w io.Writer, format Format, results []engine.Result) error {
	switch format {
	case FormatCSV:
		all := &tabular.Table{Header: rowColumns}
		for _, res := range results {
			all.Rows = append(all.Rows, RowsTable(res).Rows...)
		}
		if err := tabular.WriteCSV(w, all); err != nil {
			return eris.Wrap(err, "report: write csv")
		}
	case FormatXLSX:
		tables := make([]*tabular.Table, 0, len(results)+1)
		for _, res := range results {
			tables = append(tables, RowsTable(res))
		}
		tables = append(tables, SummaryTable(results))
		if err := tabular.WriteXLSX(w, tables...); err != nil {
			return eris.Wrap(err, "report: write xlsx")
		}
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if results == nil {
			results = []engine.Result{}
		}
		if err := enc.Encode(results); err != nil {
			return eris.Wrap(err, "report: write json")
		}
	default:
		return eris.Errorf("report: unknown format %q", format)
	}
	return nil
}

// WriteFile writes results to path in the given format.
func WriteFile(path string, format Format, results []engine.Result) error {
	f, err := os.Create(path) //nolint:gosec // path comes from operator input
	if err != nil {
		return eris.Wrap(err, "report: create file")
	}
	if err := Write(f, format, results); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "report: close file")
	}
	return nil
}

// FormatSummary renders a human-readable match-rate summary.
func FormatSummary(results []engine.Result) string {
	var b strings.Builder
	for _, res := range results {
		s := res.Summary
		fmt.Fprintf(&b, "# %s\n", res.Name)
		fmt.Fprintf(&b, "- Rows: %d (%d skipped)\n", s.Overall.Total+s.Skipped, s.Skipped)
		fmt.Fprintf(&b, "- Match rate: %.1f%% (%d/%d)\n",
			s.Overall.MatchRate*100, s.Overall.Matched+s.Overall.Overridden, s.Overall.Total)
		for _, st := range s.Levels {
			fmt.Fprintf(&b, "  - %s: %.1f%% of %d, mean score %.1f",
				st.Level, st.MatchRate*100, st.Total, st.MeanScore)
			if st.Ambiguous > 0 {
				fmt.Fprintf(&b, ", %d ambiguous", st.Ambiguous)
			}
			b.WriteString("\n")
		}
		if len(s.Anomalies) > 0 {
			b.WriteString("- Anomalies:")
			for _, kind := range sortedKinds(s.Anomalies) {
				fmt.Fprintf(&b, " %s=%d", kind, s.Anomalies[kind])
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return ""
}

// anomalies joins the row's anomaly kinds with ";".
func anomalies(r resolve.ResolvedRow) string {
	kinds := make([]string, len(r.Anomalies))
	for i, a := range r.Anomalies {
		kinds[i] = string(a.Kind)
	}
	return strings.Join(kinds, ";")
}

func sortedKinds(m map[detect.AnomalyKind]int) []detect.AnomalyKind {
	kinds := make([]detect.AnomalyKind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
