// Package geocode implements Stage A: address normalization and resolution
// to coordinates.
package geocode

import (
	"regexp"
	"strings"
)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	parentheses = regexp.MustCompile(`\(.*?\)`)

	// Administrative and lot suffixes that stop a geocoder from matching:
	// "번지 일원"/"일원" (vicinity), "외 N필지"/"외" (and other lots),
	// "지구 내"/"지구내" (within the district), "일대" (approximately).
	// A suffix only counts when it ends a word, so "일원동" survives.
	suffixes = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`(번지\s*일원|일원)` + wordEnd), "$2"},
		{regexp.MustCompile(`(외\s*\d*\s*필지|외)` + wordEnd), "$2"},
		{regexp.MustCompile(`(지구\s*내|지구내)` + wordEnd), "$2"},
		{regexp.MustCompile(`(^|[^\p{L}\p{N}_])일대` + wordEnd), "$1$2"},
	}
)

// wordEnd stands in for a Unicode-aware \b after a Hangul suffix: RE2's \b
// only knows ASCII word characters.
const wordEnd = `([^\p{L}\p{N}_]|$)`


// Tidy collapses runs of whitespace and trims the ends.
func Tidy(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// DropParentheses removes every parenthesized substring.
func DropParentheses(s string) string {
	return Tidy(parentheses.ReplaceAllString(s, ""))
}

// DropSuffixes removes lot and district qualifiers.
func DropSuffixes(s string) string {
	for _, sf := range suffixes {
		s = sf.re.ReplaceAllString(s, sf.repl)
	}
	return Tidy(s)
}

// NormalizeCandidates returns the ordered, de-duplicated address variants to
// try: the tidied original, the original without parenthesized parts, and
// the original without suffixes. Empty variants are dropped.
func NormalizeCandidates(address string) []string {
	base := Tidy(address)
	variants := []string{base, DropParentheses(base), DropSuffixes(base)}

	out := make([]string, 0, len(variants))
	seen := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
