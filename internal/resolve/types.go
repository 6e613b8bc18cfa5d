// Package resolve matches level-tagged rows to gazetteer entities in one
// ordered pass, carrying region, province and municipality context from
// each resolved row to the rows below it.
package resolve

import (
	"github.com/reliefmap/pcoder/internal/detect"
	"github.com/reliefmap/pcoder/internal/gazetteer"
)

// Outcome is how a row's match was decided.
type Outcome string

// Row outcomes.
const (
	OutcomeMatched    Outcome = "matched"
	OutcomeOverridden Outcome = "overridden"
	OutcomeNoMatch    Outcome = "no_match"
	OutcomeSkipped    Outcome = "skipped"
)

// Resolved reports whether the row carries an entity.
func (o Outcome) Resolved() bool {
	return o == OutcomeMatched || o == OutcomeOverridden
}

// Context is the matcher state in effect when a row was matched.
type Context struct {
	Region       string `json:"region,omitempty"`
	Province     string `json:"province,omitempty"`
	Municipality string `json:"municipality,omitempty"`
}

// Path holds a row's ADM0-ADM4 codes.
type Path struct {
	ADM0 string `json:"adm0,omitempty"`
	ADM1 string `json:"adm1,omitempty"`
	ADM2 string `json:"adm2,omitempty"`
	ADM3 string `json:"adm3,omitempty"`
	ADM4 string `json:"adm4,omitempty"`
}

// Get returns the code at level.
func (p Path) Get(level gazetteer.Level) string {
	switch level {
	case gazetteer.LevelCountry:
		return p.ADM0
	case gazetteer.LevelRegion:
		return p.ADM1
	case gazetteer.LevelProvince:
		return p.ADM2
	case gazetteer.LevelMunicipality:
		return p.ADM3
	case gazetteer.LevelBarangay:
		return p.ADM4
	}
	return ""
}

// Set returns a copy of p with the code at level replaced.
func (p Path) Set(level gazetteer.Level, code string) Path {
	switch level {
	case gazetteer.LevelCountry:
		p.ADM0 = code
	case gazetteer.LevelRegion:
		p.ADM1 = code
	case gazetteer.LevelProvince:
		p.ADM2 = code
	case gazetteer.LevelMunicipality:
		p.ADM3 = code
	case gazetteer.LevelBarangay:
		p.ADM4 = code
	}
	return p
}

// Codes returns the path as an ADM0..ADM4 slice.
func (p Path) Codes() []string {
	return []string{p.ADM0, p.ADM1, p.ADM2, p.ADM3, p.ADM4}
}

// ResolvedRow is a LeveledRow with its match.
type ResolvedRow struct {
	detect.LeveledRow
	Normalized string            `json:"normalized"`
	Entity     *gazetteer.Entity `json:"entity,omitempty"`
	// Score is the chosen candidate's similarity, or the best candidate's
	// when nothing cleared the threshold (0 without candidates).
	Score   int     `json:"score"`
	Outcome Outcome `json:"outcome"`
	// Ambiguous marks a match whose runner-up scored within the ambiguity
	// delta and could not be separated by context or name length.
	Ambiguous bool `json:"ambiguous,omitempty"`
	// Reconciled marks a match that replaced the active region with the
	// one derived from the matched entity or a policy entry.
	Reconciled bool    `json:"reconciled,omitempty"`
	Policy     string  `json:"policy,omitempty"`
	Context    Context `json:"context"`
	Path       Path    `json:"path"`
}
