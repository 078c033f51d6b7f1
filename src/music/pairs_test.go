package music

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPair_Canonicalizes(t *testing.T) {
	p, ok := NewPair(7, 3)
	require.True(t, ok)
	assert.Equal(t, Pair{Low: 3, High: 7}, p)

	p, ok = NewPair(3, 7)
	require.True(t, ok)
	assert.Equal(t, Pair{Low: 3, High: 7}, p)

	_, ok = NewPair(5, 5)
	assert.False(t, ok, "self-pairs must be rejected")
}

func TestPair_Other(t *testing.T) {
	p := Pair{Low: 1, High: 9}
	assert.Equal(t, int64(9), p.Other(1))
	assert.Equal(t, int64(1), p.Other(9))
}

func TestCombinations_ThreeIDs(t *testing.T) {
	pairs := Combinations([]int64{3, 1, 2})
	assert.ElementsMatch(t, []Pair{{1, 3}, {2, 3}, {1, 2}}, pairs)
}

func TestCombinations_Count(t *testing.T) {
	ids := make([]int64, 0, 40)
	for i := int64(1); i <= 40; i++ {
		ids = append(ids, i)
	}
	pairs := Combinations(ids)
	assert.Len(t, pairs, 40*39/2)

	seen := make(map[Pair]bool, len(pairs))
	for _, p := range pairs {
		assert.Less(t, p.Low, p.High)
		assert.False(t, seen[p], "pair %v generated twice", p)
		seen[p] = true
	}
}

func TestCombinations_DeduplicatesRepeatedIDs(t *testing.T) {
	pairs := Combinations([]int64{1, 2, 1, 2, 2})
	assert.Equal(t, []Pair{{Low: 1, High: 2}}, pairs)
}

func TestCombinations_FewerThanTwo(t *testing.T) {
	assert.Empty(t, Combinations(nil))
	assert.Empty(t, Combinations([]int64{4}))
	assert.Empty(t, Combinations([]int64{4, 4, 4}))
}

func TestNormalizeExternalID(t *testing.T) {
	id, err := NormalizeExternalID("  4uLU6hMCjMI75M1A2tKUQC ")
	require.NoError(t, err)
	assert.Equal(t, "4uLU6hMCjMI75M1A2tKUQC", id)

	_, err = NormalizeExternalID("   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPlaylistValidate_DropsBlankTracks(t *testing.T) {
	p := &Playlist{ExternalID: "pl", TrackExternalIDs: []string{"a", " ", "", " b "}}
	require.NoError(t, p.Validate())
	assert.Equal(t, []string{"a", "b"}, p.TrackExternalIDs)

	assert.ErrorIs(t, (&Playlist{}).Validate(), ErrInvalidInput)
}
