package search

import (
	"cmp"
	"slices"
	"strings"

	"github.com/contre95/playgraph/src/music"
)

// Ranking weights. Each signal is scored independently and summed.
const (
	WeightExactLabel      = 120
	WeightLabelPrefix     = 80
	WeightDisplayPrefix   = 50
	WeightPerformerPrefix = 30
	WeightDisplayContains = 20
	WeightPerfContains    = 10
	SimilarityScale       = 5
)

// NormalizeQuery lowercases and trims a raw query.
func NormalizeQuery(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Score computes the relevance of c for an already normalized query.
func Score(query string, c music.Candidate) float64 {
	label := strings.ToLower(c.Label())
	display := strings.ToLower(c.DisplayName)
	performer := strings.ToLower(c.PerformerName)

	var score float64
	if label == query {
		score += WeightExactLabel
	}
	if strings.HasPrefix(label, query) {
		score += WeightLabelPrefix
	}
	if strings.HasPrefix(display, query) {
		score += WeightDisplayPrefix
	}
	if strings.HasPrefix(performer, query) {
		score += WeightPerformerPrefix
	}
	if strings.Contains(display, query) {
		score += WeightDisplayContains
	}
	if strings.Contains(performer, query) {
		score += WeightPerfContains
	}
	return score + c.Similarity*SimilarityScale
}

// Rank scores candidates, keeps the best row per case-insensitive display
// name and returns at most limit results by descending score.
func Rank(query string, candidates []music.Candidate, limit int) []music.SearchResult {
	query = NormalizeQuery(query)
	if query == "" || limit <= 0 {
		return []music.SearchResult{}
	}

	winners := make(map[string]music.SearchResult, len(candidates))
	for _, c := range candidates {
		result := music.SearchResult{Metadata: c.Metadata, Score: Score(query, c)}
		key := strings.ToLower(c.DisplayName)
		if best, ok := winners[key]; !ok || beats(result, best) {
			winners[key] = result
		}
	}

	results := make([]music.SearchResult, 0, len(winners))
	for _, r := range winners {
		results = append(results, r)
	}
	slices.SortFunc(results, compareResults)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// beats reports whether a wins over b inside one display name group.
func beats(a, b music.SearchResult) bool {
	return compareResults(a, b) < 0
}

// compareResults orders by score descending, then performer name, display
// name and track id ascending.
func compareResults(a, b music.SearchResult) int {
	return cmp.Or(
		cmp.Compare(b.Score, a.Score),
		cmp.Compare(a.PerformerName, b.PerformerName),
		cmp.Compare(a.DisplayName, b.DisplayName),
		cmp.Compare(a.TrackID, b.TrackID),
	)
}
