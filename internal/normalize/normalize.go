// Package normalize canonicalizes Philippine administrative place names so
// that labels extracted from disaster reports compare cleanly against the
// reference gazetteer.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// leadingQualifiers are administrative prefixes stripped from the start of a
// name. Longer forms come first so "municipality of" wins over "mun".
var leadingQualifiers = []string{
	"municipality of ",
	"province of ",
	"city of ",
	"mun of ",
	"barangay ",
	"brgy ",
	"bgy ",
}

// trailingQualifiers are administrative suffixes stripped from the end.
var trailingQualifiers = []string{
	" city",
}

// abbreviations expands token-level abbreviations. Keys are matched with
// any trailing period removed.
var abbreviations = map[string]string{
	"st":   "san",
	"sta":  "santa",
	"sto":  "santo",
	"gen":  "general",
	"pres": "president",
	"mt":   "mount",
}

var (
	parentheticalRe = regexp.MustCompile(`\([^)]*\)?`)
	separatorRe     = regexp.MustCompile(`[-_,/;:*"')` + "`" + `]+`)
	romanRe         = regexp.MustCompile(`^x{0,3}(ix|iv|v?i{0,3})$`)
	multiSpaceRe    = regexp.MustCompile(`\s+`)
)

var romanValues = map[byte]int{'i': 1, 'v': 5, 'x': 10}

// foldChain decomposes, drops combining marks and recomposes, turning
// "Parañaque" into "Paranaque".
func foldChain() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Name returns the canonical form of a raw location label:
//  1. lowercase
//  2. fold diacritics to base Latin letters
//  3. drop parenthetical annotations and footnote artifacts
//  4. expand saint and other abbreviations ("sta." -> "santa")
//  5. strip leading/trailing administrative qualifiers
//  6. convert Roman numeral tokens (after the first) to Arabic digits
//  7. collapse whitespace
//
// Name is total and idempotent: Name(Name(s)) == Name(s).
func Name(raw string) string {
	s := raw
	// Each pass is a fixed point for well-formed input; the loop only
	// matters when stripping one qualifier exposes another.
	for i := 0; i < 4; i++ {
		next := pass(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func pass(s string) string {
	s = strings.ToLower(s)
	s = foldDiacritics(s)
	s = parentheticalRe.ReplaceAllString(s, " ")
	s = separatorRe.ReplaceAllString(s, " ")
	s = collapse(s)

	tokens := strings.Fields(s)
	tokens = expandAbbreviations(tokens)
	s = strings.Join(tokens, " ")
	s = strings.ReplaceAll(s, ".", " ")
	s = collapse(s)

	s = stripQualifiers(s)

	tokens = strings.Fields(s)
	for i := 1; i < len(tokens); i++ {
		if n, ok := romanToInt(tokens[i]); ok {
			tokens[i] = strconv.Itoa(n)
		}
	}
	return strings.Join(tokens, " ")
}

// foldDiacritics removes combining marks, transliterates any remaining
// non-ASCII letters and drops superscript/other numerals (footnote marks).
func foldDiacritics(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.No, r) {
			return -1
		}
		return r
	}, s)

	folded, _, err := transform.String(foldChain(), s)
	if err == nil {
		s = folded
	}

	for _, r := range s {
		if r > unicode.MaxASCII {
			return strings.ToLower(unidecode.Unidecode(s))
		}
	}
	return s
}

func expandAbbreviations(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		key := strings.TrimRight(tok, ".")
		if full, ok := abbreviations[key]; ok {
			out = append(out, full)
			continue
		}
		out = append(out, tok)
	}
	return out
}

func stripQualifiers(s string) string {
	for changed := true; changed; {
		changed = false
		for _, q := range leadingQualifiers {
			if strings.HasPrefix(s, q) && len(s) > len(q) {
				s = strings.TrimSpace(s[len(q):])
				changed = true
			}
		}
		for _, q := range trailingQualifiers {
			if strings.HasSuffix(s, q) && len(s) > len(q) {
				s = strings.TrimSpace(s[:len(s)-len(q)])
				changed = true
			}
		}
	}
	return s
}

// romanToInt converts tokens i..xxxix. Anything else, including the empty
// string, reports false.
func romanToInt(tok string) (int, bool) {
	if tok == "" || !romanRe.MatchString(tok) {
		return 0, false
	}
	total := 0
	for i := 0; i < len(tok); i++ {
		v := romanValues[tok[i]]
		if i+1 < len(tok) && romanValues[tok[i+1]] > v {
			total -= v
		} else {
			total += v
		}
	}
	return total, true
}

func collapse(s string) string {
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}

// All normalizes a slice of labels.
func All(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Name(n)
	}
	return out
}
