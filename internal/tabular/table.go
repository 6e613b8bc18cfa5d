// Package tabular reads and writes the row-oriented files the resolver works
// with: extracted report tables, P-code reference sheets and result exports.
package tabular

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Table is a header plus data rows. Rows may be ragged.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Options configures ReadFile.
type Options struct {
	Sheet      string // xlsx sheet name; empty selects SheetIndex
	SheetIndex int
	SkipRows   int  // rows discarded before the header
	NoHeader   bool // treat the first kept row as data
	Delimiter  rune // csv only; '\t' is implied for .tsv
}

// Column returns the index of the header column matching name
// case-insensitively, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// Cell returns row[i] trimmed, or "" when the row is too short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ReadFile loads a .csv, .tsv or .xlsx file into a Table.
func ReadFile(ctx context.Context, path string, opts Options) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, opts)
	case ".csv", ".tsv", ".txt":
		f, err := os.Open(path) //nolint:gosec // path comes from operator input
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		if opts.Delimiter == 0 && strings.EqualFold(filepath.Ext(path), ".tsv") {
			opts.Delimiter = '\t'
		}
		t, err := ReadCSV(ctx, f, opts)
		if err != nil {
			return nil, err
		}
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return t, nil
	default:
		return nil, eris.Errorf("tabular: unsupported file type %q", filepath.Ext(path))
	}
}

func splitHeader(rows [][]string, opts Options) *Table {
	if opts.SkipRows > 0 {
		if opts.SkipRows >= len(rows) {
			rows = nil
		} else {
			rows = rows[opts.SkipRows:]
		}
	}
	t := &Table{}
	if !opts.NoHeader && len(rows) > 0 {
		t.Header = rows[0]
		rows = rows[1:]
	}
	t.Rows = rows
	return t
}
