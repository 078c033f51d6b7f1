package music

import "fmt"

// Pair is an unordered pair of distinct track ids stored canonically with
// Low < High.
type Pair struct {
	Low  int64 `json:"low_id"`
	High int64 `json:"high_id"`
}

// NewPair canonicalizes a and b. It reports false for a self-pair.
func NewPair(a, b int64) (Pair, bool) {
	switch {
	case a < b:
		return Pair{Low: a, High: b}, true
	case b < a:
		return Pair{Low: b, High: a}, true
	default:
		return Pair{}, false
	}
}

// Other returns the member of the pair that is not id.
func (p Pair) Other(id int64) int64 {
	if p.Low == id {
		return p.High
	}
	return p.Low
}

// Edge is a co-occurrence record. Count starts at 1 and only grows.
type Edge struct {
	Pair
	Count int64 `json:"count"`
}

// Neighbor is one side of an edge seen from a given track.
type Neighbor struct {
	TrackID int64 `json:"track_id"`
	Count   int64 `json:"count"`
}

// UniqueIDs returns ids with duplicates removed, keeping first-seen order.
func UniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}

// Combinations returns every unordered 2-combination of the distinct ids
// exactly once, each canonicalized. n distinct ids yield n*(n-1)/2 pairs.
func Combinations(ids []int64) []Pair {
	unique := UniqueIDs(ids)
	if len(unique) < 2 {
		return nil
	}
	pairs := make([]Pair, 0, len(unique)*(len(unique)-1)/2)
	for i := 0; i < len(unique); i++ {
		for j := i + 1; j < len(unique); j++ {
			pair, _ := NewPair(unique[i], unique[j])
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

// CanonicalPairs checks that every pair is canonical and returns them with
// duplicates removed, so a batch never touches the same edge twice.
func CanonicalPairs(pairs []Pair) ([]Pair, error) {
	seen := make(map[Pair]struct{}, len(pairs))
	unique := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if p.Low >= p.High {
			return nil, fmt.Errorf("%w: pair (%d, %d) is not canonical", ErrInvalidInput, p.Low, p.High)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	return unique, nil
}
