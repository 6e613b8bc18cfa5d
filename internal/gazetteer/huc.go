package gazetteer

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/reliefmap/pcoder/internal/normalize"
	"github.com/reliefmap/pcoder/internal/tabular"
)

// HUCEntry is one highly urbanized city as it appears in reports. First and
// Last are the "City of X" and "X City" spellings.
type HUCEntry struct {
	First string `yaml:"city_first" json:"city_first"`
	Last  string `yaml:"city_last" json:"city_last"`
	Code  string `yaml:"pcode" json:"pcode,omitempty"`
}

// HUCTable answers whether a report label names a highly urbanized city. A
// nil table contains nothing.
type HUCTable struct {
	entries []HUCEntry
	raw     map[string]int
	exclude map[string]bool
}

// NewHUCTable indexes entries by their raw spellings, lowercased with
// whitespace collapsed.
func NewHUCTable(entries []HUCEntry) *HUCTable {
	h := &HUCTable{
		entries: make([]HUCEntry, 0, len(entries)),
		raw:     make(map[string]int),
		exclude: make(map[string]bool),
	}
	for _, e := range entries {
		h.add(e)
	}
	return h
}

func (h *HUCTable) add(e HUCEntry) {
	i := len(h.entries)
	h.entries = append(h.entries, e)
	for _, s := range []string{e.First, e.Last} {
		if key := rawKey(s); key != "" {
			h.raw[key] = i
			delete(h.exclude, key)
		}
	}
}

// ReadHUCTable loads a CSV or XLSX file with city_first and city_last
// columns and an optional pcode column.
func ReadHUCTable(ctx context.Context, path string) (*HUCTable, error) {
	t, err := tabular.ReadFile(ctx, path, tabular.Options{})
	if err != nil {
		return nil, eris.Wrap(err, "gazetteer: read huc table")
	}
	first, last, code := t.Column("city_first"), t.Column("city_last"), t.Column("pcode")
	if first < 0 && last < 0 {
		return nil, malformed("city_first", "missing required column")
	}

	entries := make([]HUCEntry, 0, len(t.Rows))
	for _, row := range t.Rows {
		e := HUCEntry{
			First: tabular.Cell(row, first),
			Last:  tabular.Cell(row, last),
			Code:  tabular.Cell(row, code),
		}
		if e.First == "" && e.Last == "" {
			continue
		}
		entries = append(entries, e)
	}
	return NewHUCTable(entries), nil
}

// Len returns the number of entries.
func (h *HUCTable) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

// Entries returns a copy of the table's entries.
func (h *HUCTable) Entries() []HUCEntry {
	if h == nil {
		return nil
	}
	return append([]HUCEntry(nil), h.entries...)
}

// Contains reports whether label is one of the listed spellings, compared
// case-insensitively with whitespace collapsed. Normalized names are not
// consulted: "Cebu" the province must not match "City of Cebu".
func (h *HUCTable) Contains(label string) bool {
	_, ok := h.find(label)
	return ok
}

// Code returns the P-code listed for label, or "".
func (h *HUCTable) Code(label string) string {
	if e, ok := h.find(label); ok {
		return e.Code
	}
	return ""
}

func (h *HUCTable) find(label string) (HUCEntry, bool) {
	if h == nil {
		return HUCEntry{}, false
	}
	key := rawKey(label)
	if key == "" || h.exclude[key] {
		return HUCEntry{}, false
	}
	if i, ok := h.raw[key]; ok {
		return h.entries[i], true
	}
	return HUCEntry{}, false
}

// Include returns a copy of h with e added.
func (h *HUCTable) Include(e HUCEntry) *HUCTable {
	out := h.clone()
	out.add(e)
	return out
}

// Exclude returns a copy of h in which the spelling label never matches.
func (h *HUCTable) Exclude(label string) *HUCTable {
	out := h.clone()
	if key := rawKey(label); key != "" {
		out.exclude[key] = true
	}
	return out
}

func (h *HUCTable) clone() *HUCTable {
	out := NewHUCTable(h.Entries())
	if h != nil {
		for k := range h.exclude {
			out.exclude[k] = true
		}
	}
	return out
}

// MarkHUCs sets IsHUC on municipality-level entities listed in h, matching
// by code when the table has codes and by normalized name otherwise.
func MarkHUCs(entities []Entity, h *HUCTable) []Entity {
	if h.Len() == 0 {
		return entities
	}
	codes := make(map[string]bool)
	names := make(map[string]bool)
	for _, e := range h.entries {
		if e.Code != "" {
			codes[e.Code] = true
			continue
		}
		for _, s := range []string{e.First, e.Last} {
			if n := normalize.Name(s); n != "" {
				names[n] = true
			}
		}
	}

	out := make([]Entity, len(entities))
	copy(out, entities)
	for i, e := range out {
		if e.Level != LevelMunicipality || e.IsHUC {
			continue
		}
		if codes[e.Code] || names[normalize.Name(e.Name)] {
			out[i].IsHUC = true
		}
	}
	return out
}

func rawKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
