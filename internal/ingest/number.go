package ingest

import (
	"strconv"
	"strings"
)

// ParseNumber cleans an extracted numeric cell. Thousands separators and
// spaces are removed and a lone dash reads as zero. Blank cells and text
// report ok=false.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "nan", "None":
		return 0, false
	case "-", "–", "—":
		return 0, true
	}
	s = strings.NewReplacer(",", "", " ", "").Replace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
