package gazetteer

import (
	"math"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/rotisserie/eris"
	"github.com/xrash/smetrics"
)

// Similarity scores two normalized names on a 0-100 scale, 100 meaning
// identical. Implementations must be symmetric and deterministic.
type Similarity func(a, b string) int

// Similarity names accepted by SimilarityByName.
const (
	SimilarityLevenshtein = "levenshtein"
	SimilarityJaroWinkler = "jaro_winkler"
	SimilarityBlended     = "blended"
)

// LevenshteinRatio is 100 * (1 - editDistance / longerLength), rounded.
func LevenshteinRatio(a, b string) int {
	if a == b {
		return 100
	}
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return toScore(1 - float64(d)/float64(n))
}

// JaroWinkler uses the standard 0.7 boost threshold and 4-rune prefix.
func JaroWinkler(a, b string) int {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}
	return toScore(smetrics.JaroWinkler(a, b, 0.7, 4))
}

// Blended weighs Jaro-Winkler 0.7 and the Levenshtein ratio 0.3, which
// rewards shared prefixes without forgiving long tails.
func Blended(a, b string) int {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}
	jw := smetrics.JaroWinkler(a, b, 0.7, 4)
	lev := float64(LevenshteinRatio(a, b)) / 100
	return toScore(0.7*jw + 0.3*lev)
}

// SimilarityByName resolves a configured similarity name. An empty name
// selects LevenshteinRatio.
func SimilarityByName(name string) (Similarity, error) {
	switch name {
	case "", SimilarityLevenshtein:
		return LevenshteinRatio, nil
	case SimilarityJaroWinkler:
		return JaroWinkler, nil
	case SimilarityBlended:
		return Blended, nil
	default:
		return nil, eris.Errorf("gazetteer: unknown similarity %q", name)
	}
}

func toScore(f float64) int {
	s := int(math.Round(f * 100))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
