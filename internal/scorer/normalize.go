// internal/scorer/normalize.go
package scorer

import (
	"math"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// digraphs maps diacritic letters to their ASCII digraph form before the
// generic mark-stripping pass. German labels in particular need the
// digraph, not the bare vowel, to line up with the synonym table.
var digraphs = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
	"Ä", "ae", "Ö", "oe", "Ü", "ue",
	"æ", "ae", "œ", "oe", "ø", "oe", "å", "aa",
	"Æ", "ae", "Œ", "oe", "Ø", "oe", "Å", "aa",
)

// markStripper removes remaining combining marks (é -> e, ñ -> n).
var markStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeLabel lowercases, folds diacritics to ASCII, and collapses
// punctuation runs to single spaces. The result is the only form the
// similarity functions ever compare.
func normalizeLabel(s string) string {
	s = digraphs.Replace(s)
	if folded, _, err := transform.String(markStripper, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// tokenize splits an already-normalized label into word tokens.
func tokenize(normalized string) []string {
	return strings.Fields(normalized)
}

// levenshteinSimilarity converts edit distance to a [0,1] similarity.
func levenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// tokenCosine computes the cosine similarity of the binary token sets of
// two normalized labels: token overlap over the geometric mean of set
// sizes. Order-insensitive, so "email address" and "address email" match.
func tokenCosine(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	overlap := 0
	seen := make(map[string]bool, len(tb))
	for _, t := range tb {
		if set[t] && !seen[t] {
			overlap++
			seen[t] = true
		}
	}
	return float64(overlap) / math.Sqrt(float64(len(set))*float64(len(tb)))
}

// NormalizeLabel exposes the canonical label form for collaborators that
// must match labels exactly the way scoring does (session tracker,
// selector memory store).
func NormalizeLabel(s string) string { return normalizeLabel(s) }

// Similarity scores two raw labels after normalization.
func Similarity(a, b string) float64 { return similarity(normalizeLabel(a), normalizeLabel(b)) }

// similarity is the label-matching primitive: the better of edit-distance
// and token-overlap similarity on normalized inputs.
func similarity(normalizedA, normalizedB string) float64 {
	if normalizedA == "" || normalizedB == "" {
		return 0
	}
	lev := levenshteinSimilarity(normalizedA, normalizedB)
	cos := tokenCosine(normalizedA, normalizedB)
	if cos > lev {
		return cos
	}
	return lev
}
