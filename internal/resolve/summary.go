package resolve

import (
	"github.com/reliefmap/pcoder/internal/detect"
	"github.com/reliefmap/pcoder/internal/gazetteer"
)

// LevelStats aggregates match outcomes for one level.
type LevelStats struct {
	Level      gazetteer.Level `json:"level"`
	Total      int             `json:"total"`
	Matched    int             `json:"matched"`
	Overridden int             `json:"overridden"`
	Unmatched  int             `json:"unmatched"`
	Ambiguous  int             `json:"ambiguous"`
	// MeanScore averages the scores of resolved rows.
	MeanScore float64 `json:"mean_score"`
	// MatchRate is (Matched+Overridden)/Total.
	MatchRate float64 `json:"match_rate"`

	scoreSum int
}

func (s *LevelStats) add(r ResolvedRow) {
	s.Total++
	switch r.Outcome {
	case OutcomeMatched:
		s.Matched++
	case OutcomeOverridden:
		s.Overridden++
	default:
		s.Unmatched++
	}
	if r.Outcome.Resolved() {
		s.scoreSum += r.Score
	}
	if r.Ambiguous {
		s.Ambiguous++
	}
}

func (s *LevelStats) finish() {
	resolved := s.Matched + s.Overridden
	if resolved > 0 {
		s.MeanScore = float64(s.scoreSum) / float64(resolved)
	}
	if s.Total > 0 {
		s.MatchRate = float64(resolved) / float64(s.Total)
	}
}

// Summary is the per-level data-quality report for one table.
type Summary struct {
	Levels    []LevelStats               `json:"levels"`
	Overall   LevelStats                 `json:"overall"`
	Skipped   int                        `json:"skipped"`
	Anomalies map[detect.AnomalyKind]int `json:"anomalies,omitempty"`
}

// Level returns the stats for level, zero-valued when no row had it.
func (s Summary) Level(level gazetteer.Level) LevelStats {
	for _, l := range s.Levels {
		if l.Level == level {
			return l
		}
	}
	return LevelStats{Level: level}
}

// Summarize computes match statistics per level. Skipped rows are counted
// separately and excluded from the rates.
func Summarize(rows []ResolvedRow) Summary {
	byLevel := make(map[gazetteer.Level]*LevelStats)
	sum := Summary{Overall: LevelStats{Level: gazetteer.LevelUnknown}}
	leveled := make([]detect.LeveledRow, 0, len(rows))

	for _, r := range rows {
		leveled = append(leveled, r.LeveledRow)
		if r.Outcome == OutcomeSkipped {
			sum.Skipped++
			continue
		}
		st, ok := byLevel[r.Level]
		if !ok {
			st = &LevelStats{Level: r.Level}
			byLevel[r.Level] = st
		}
		st.add(r)
		sum.Overall.add(r)
	}

	for _, level := range gazetteer.Levels {
		if st, ok := byLevel[level]; ok {
			st.finish()
			sum.Levels = append(sum.Levels, *st)
		}
	}
	sum.Overall.finish()

	if a := detect.CountAnomalies(leveled); len(a) > 0 {
		sum.Anomalies = a
	}
	return sum
}
