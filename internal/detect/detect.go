// Package detect infers the administrative level of each row in an extracted
// report table. Levels are recovered from total markers, casing, a list of
// highly urbanized cities and a running-total heuristic: a province row's
// value is the target that its municipality rows must add up to.
package detect

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/reliefmap/pcoder/internal/gazetteer"
)

// RawRow is one line item of an extracted table, before resolution.
type RawRow struct {
	Text  string   `json:"text"`
	Value *float64 `json:"value,omitempty"`
	Seq   int      `json:"seq"`
	// Hint carries a level the front-end already knows (column-based
	// hierarchies). LevelUnknown means no hint.
	Hint gazetteer.Level `json:"hint,omitempty"`
}

// AnomalyKind classifies a detection discrepancy.
type AnomalyKind string

// Detection anomalies. None of them stop detection.
const (
	AnomalyOvershoot    AnomalyKind = "overshoot"
	AnomalyUndershoot   AnomalyKind = "undershoot"
	AnomalyMissingValue AnomalyKind = "missing_value"
	AnomalyNoTarget     AnomalyKind = "no_target"
)

// Anomaly records a discrepancy found while accumulating a scope.
type Anomaly struct {
	Kind   AnomalyKind `json:"kind"`
	Target float64     `json:"target,omitempty"`
	Sum    float64     `json:"sum,omitempty"`
}

// LeveledRow is a RawRow with its inferred level.
type LeveledRow struct {
	RawRow
	Level gazetteer.Level `json:"level"`
	// HUC marks a highly urbanized city row: level MUNICIPALITY that also
	// acts as its own province.
	HUC bool `json:"huc,omitempty"`
	// LowConfidence marks a province row that had no usable target.
	LowConfidence bool `json:"low_confidence,omitempty"`
	// ParentSeq is the Seq of the row owning this one (the province of a
	// municipality, the municipality of a barangay), or -1.
	ParentSeq int       `json:"parent_seq"`
	Anomalies []Anomaly `json:"anomalies,omitempty"`
}

// Config tunes detection.
type Config struct {
	// TotalMarkers are labels (case-insensitive) that denote the country
	// total row.
	TotalMarkers []string
	// A scope closes when |sum - target| <= max(AbsTolerance, RelTolerance*target).
	AbsTolerance float64
	RelTolerance float64
	// HUC lists highly urbanized cities. Nil disables HUC detection.
	HUC *gazetteer.HUCTable
}

// DefaultConfig returns the detection defaults.
func DefaultConfig() Config {
	return Config{
		TotalMarkers: []string{"GRAND TOTAL", "TOTAL"},
		AbsTolerance: 0.5,
	}
}

// Detector assigns levels to rows. It holds no per-table state and may be
// shared between goroutines.
type Detector struct {
	cfg     Config
	markers map[string]bool
}

// New creates a Detector.
func New(cfg Config) *Detector {
	d := &Detector{cfg: cfg, markers: make(map[string]bool, len(cfg.TotalMarkers))}
	for _, m := range cfg.TotalMarkers {
		d.markers[labelKey(m)] = true
	}
	return d
}

type phase int

const (
	expectProvince phase = iota
	accumulating
	degraded
)

// scan is the state of one Detect call.
type scan struct {
	d      *Detector
	out    []LeveledRow
	phase  phase
	prov   int // index in out of the open province row, -1 if none
	target float64
	sum    float64
	muni   int // index in out of the latest municipality row, -1 if none
	owner  int // index in out of the latest province row, -1 if none
}

// Detect assigns a level to every row. Rows are processed in Seq order and
// returned in that order; the input slice is not modified.
func (d *Detector) Detect(rows []RawRow) []LeveledRow {
	sorted := make([]RawRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	s := &scan{d: d, out: make([]LeveledRow, 0, len(rows)), prov: -1, muni: -1, owner: -1}
	for _, r := range sorted {
		s.step(r)
	}
	s.closeScope()
	return s.out
}

func (s *scan) step(r RawRow) {
	row := LeveledRow{RawRow: r, ParentSeq: -1}
	text := strings.TrimSpace(r.Text)

	switch {
	case text == "":
		row.Level = gazetteer.LevelUnknown
		s.emit(row)
	case s.d.markers[labelKey(text)] || r.Hint == gazetteer.LevelCountry:
		s.closeScope()
		s.muni, s.owner = -1, -1
		row.Level = gazetteer.LevelCountry
		s.emit(row)
	case r.Hint == gazetteer.LevelRegion:
		s.region(row)
	case r.Hint == gazetteer.LevelProvince && s.d.cfg.HUC.Contains(text):
		// Column-based hierarchies list a HUC in the province column.
		s.closeScope()
		s.huc(row)
		s.owner = s.muni
	case r.Hint == gazetteer.LevelProvince:
		s.closeScope()
		s.province(row)
	case r.Hint == gazetteer.LevelMunicipality:
		s.municipality(row)
	case r.Hint == gazetteer.LevelBarangay:
		row.Level = gazetteer.LevelBarangay
		if s.muni >= 0 {
			row.ParentSeq = s.out[s.muni].Seq
		}
		s.emit(row)
	case isUpper(text):
		s.region(row)
	case s.d.cfg.HUC.Contains(text):
		s.huc(row)
	default:
		switch s.phase {
		case expectProvince:
			s.province(row)
		default:
			s.municipality(row)
		}
	}
}

func (s *scan) emit(row LeveledRow) int {
	s.out = append(s.out, row)
	return len(s.out) - 1
}

func (s *scan) region(row LeveledRow) {
	s.closeScope()
	s.muni, s.owner = -1, -1
	row.Level = gazetteer.LevelRegion
	s.emit(row)
}

// huc emits a highly urbanized city. An open accumulation is left
// untouched: HUC values are not part of any province total.
func (s *scan) huc(row LeveledRow) {
	row.Level = gazetteer.LevelMunicipality
	row.HUC = true
	row.ParentSeq = row.Seq
	if s.phase == degraded {
		s.phase = expectProvince
		s.prov = -1
	}
	s.muni = s.emit(row)
}

func (s *scan) province(row LeveledRow) {
	row.Level = gazetteer.LevelProvince
	s.muni = -1
	if row.Value == nil || *row.Value <= 0 {
		row.LowConfidence = true
		row.Anomalies = append(row.Anomalies, Anomaly{Kind: AnomalyNoTarget})
		s.prov = s.emit(row)
		s.owner = s.prov
		s.phase = degraded
		return
	}
	s.prov = s.emit(row)
	s.owner = s.prov
	s.phase = accumulating
	s.target = *row.Value
	s.sum = 0
}

func (s *scan) municipality(row LeveledRow) {
	row.Level = gazetteer.LevelMunicipality
	switch {
	case s.prov >= 0:
		row.ParentSeq = s.out[s.prov].Seq
	case row.Hint == gazetteer.LevelMunicipality && s.owner >= 0:
		row.ParentSeq = s.out[s.owner].Seq
	}
	if s.phase != accumulating {
		s.muni = s.emit(row)
		return
	}

	v := 0.0
	if row.Value == nil {
		row.Anomalies = append(row.Anomalies, Anomaly{Kind: AnomalyMissingValue, Target: s.target, Sum: s.sum})
	} else {
		v = *row.Value
	}

	sum := s.sum + v
	switch {
	case s.within(sum):
		s.muni = s.emit(row)
		s.phase = expectProvince
		s.prov = -1
	case sum > s.target && row.Hint != gazetteer.LevelMunicipality:
		// The row cannot belong to the open scope: it starts the next one.
		target := s.target
		s.closeScope()
		row.ParentSeq = -1
		row.Anomalies = append(row.Anomalies, Anomaly{Kind: AnomalyOvershoot, Target: target, Sum: sum})
		s.province(row)
	default:
		s.sum = sum
		s.muni = s.emit(row)
	}
}

// closeScope ends an open accumulation. A scope still short of its target
// is reported on its province row.
func (s *scan) closeScope() {
	if s.phase == accumulating && s.prov >= 0 && !s.within(s.sum) {
		s.out[s.prov].Anomalies = append(s.out[s.prov].Anomalies, Anomaly{
			Kind:   AnomalyUndershoot,
			Target: s.target,
			Sum:    s.sum,
		})
	}
	s.phase = expectProvince
	s.prov = -1
	s.target, s.sum = 0, 0
}

func (s *scan) within(sum float64) bool {
	tol := math.Max(s.d.cfg.AbsTolerance, s.d.cfg.RelTolerance*s.target)
	return math.Abs(sum-s.target) <= tol
}

// isUpper reports whether text has at least one cased letter and no
// lowercase ones.
func isUpper(text string) bool {
	cased := false
	for _, r := range text {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}

func labelKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// CountAnomalies returns the number of anomalies across rows, by kind.
func CountAnomalies(rows []LeveledRow) map[AnomalyKind]int {
	out := make(map[AnomalyKind]int)
	for _, r := range rows {
		for _, a := range r.Anomalies {
			out[a.Kind]++
		}
	}
	return out
}
