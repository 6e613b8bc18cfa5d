package gazetteer

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Level is a position in the Philippine administrative hierarchy (ADM0-ADM4).
type Level int

// Administrative levels, top to bottom.
const (
	LevelUnknown Level = iota
	LevelCountry
	LevelRegion
	LevelProvince
	LevelMunicipality
	LevelBarangay
)

var levelNames = map[Level]string{
	LevelUnknown:      "unknown",
	LevelCountry:      "country",
	LevelRegion:       "region",
	LevelProvince:     "province",
	LevelMunicipality: "municipality",
	LevelBarangay:     "barangay",
}

var levelAliases = map[string]Level{
	"country":      LevelCountry,
	"adm0":         LevelCountry,
	"region":       LevelRegion,
	"adm1":         LevelRegion,
	"province":     LevelProvince,
	"adm2":         LevelProvince,
	"municipality": LevelMunicipality,
	"city":         LevelMunicipality,
	"adm3":         LevelMunicipality,
	"barangay":     LevelBarangay,
	"adm4":         LevelBarangay,
}

// Levels lists the concrete levels in hierarchy order.
var Levels = []Level{LevelCountry, LevelRegion, LevelProvince, LevelMunicipality, LevelBarangay}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return levelNames[LevelUnknown]
}

// ADM returns the level's ADMn index, or -1 for LevelUnknown.
func (l Level) ADM() int {
	if !l.Valid() {
		return -1
	}
	return int(l) - int(LevelCountry)
}

// Valid reports whether l is one of the five concrete levels.
func (l Level) Valid() bool {
	return l >= LevelCountry && l <= LevelBarangay
}

// Parent returns the immediate ancestor level. Country has no parent and
// returns LevelUnknown.
func (l Level) Parent() Level {
	if l <= LevelCountry || l > LevelBarangay {
		return LevelUnknown
	}
	return l - 1
}

// ParseLevel accepts level names ("province"), ADM aliases ("adm2") and is
// case-insensitive.
func ParseLevel(s string) (Level, error) {
	if l, ok := levelAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return LevelUnknown, eris.Errorf("gazetteer: unknown level %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	if strings.EqualFold(string(b), levelNames[LevelUnknown]) || len(b) == 0 {
		*l = LevelUnknown
		return nil
	}
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
