package search

import (
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
)

// trigrams returns the set of trigrams of s the way pg_trgm extracts them:
// lower-cased alphanumeric words, each padded with two blanks in front and
// one behind, so no trigram spans two words.
func trigrams(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{})
	for _, word := range words {
		for gram := range edlib.Shingle("  "+word+" ", 3) {
			set[gram] = struct{}{}
		}
	}
	return set
}

// Similarity returns the trigram Jaccard similarity of a and b in [0, 1].
// Strings without any alphanumeric content score 0, which is how a NULL
// similarity is treated by the ranking.
func Similarity(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for gram := range ta {
		if _, ok := tb[gram]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(ta)+len(tb)-shared)
}
