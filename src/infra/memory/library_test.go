package memory

import (
	"context"
	"testing"

	"github.com/contre95/playgraph/src/music"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryGraph(t *testing.T) {
	lib := NewLibrary()
	ctx := context.Background()

	var ids []int64
	for _, e := range []string{"trackA", "trackB", "trackC", "trackA"} {
		id, err := lib.ResolveOrCreate(ctx, e)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []int64{1, 2, 3, 1}, ids)

	require.NoError(t, lib.UpsertPairs(ctx, music.Combinations(ids)))
	require.NoError(t, lib.UpsertPairs(ctx, music.Combinations([]int64{1, 2})))

	edge, err := lib.GetEdge(ctx, music.Pair{Low: 1, High: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), edge.Count)
	edge, err = lib.GetEdge(ctx, music.Pair{Low: 2, High: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), edge.Count)

	neighbors, err := lib.Neighbors(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []music.Neighbor{{TrackID: 2, Count: 2}, {TrackID: 3, Count: 1}}, neighbors)

	err = lib.UpsertPairs(ctx, []music.Pair{{Low: 1, High: 2}, {Low: 2, High: 99}})
	require.Error(t, err)
	edge, err = lib.GetEdge(ctx, music.Pair{Low: 1, High: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), edge.Count, "failed batch must not be applied")
}

func TestLibraryEnrichment(t *testing.T) {
	lib := NewLibrary()
	ctx := context.Background()
	for _, e := range []string{"a", "b", "c"} {
		_, err := lib.ResolveOrCreate(ctx, e)
		require.NoError(t, err)
	}

	inserted, err := lib.BulkInsertMetadata(ctx, []music.Metadata{
		{TrackID: 2, ExternalID: "b", DisplayName: "One More Time", PerformerName: "Daft Punk"},
		{TrackID: 2, ExternalID: "b", DisplayName: "Ignored", PerformerName: "Daft Punk"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	page, err := lib.FindUnenriched(ctx, music.UnenrichedQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, []music.TrackIdentity{{ID: 1, ExternalID: "a"}, {ID: 3, ExternalID: "c"}}, page.Sample)

	candidates, err := lib.SearchCandidates(ctx, "punk")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "One More Time", candidates[0].DisplayName)
	assert.Greater(t, candidates[0].Similarity, 0.0)

	require.NoError(t, lib.Reset(ctx))
	stats, err := lib.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, music.Stats{}, *stats)
}

func TestLibraryDeletePlaylist(t *testing.T) {
	lib := NewLibrary()
	ctx := context.Background()
	for _, id := range []string{"pl1", "pl2"} {
		_, err := lib.SavePlaylist(ctx, &music.Playlist{Name: id, ExternalID: id})
		require.NoError(t, err)
	}

	require.NoError(t, lib.DeletePlaylist(ctx, "pl1"))
	require.NoError(t, lib.DeletePlaylist(ctx, "unknown"))
	_, err := lib.GetPlaylist(ctx, "pl1")
	assert.ErrorIs(t, err, music.ErrNotFound)
	ids, err := lib.GetPlaylistExternalIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pl2"}, ids)

	created, err := lib.SavePlaylist(ctx, &music.Playlist{Name: "again", ExternalID: "pl1"})
	require.NoError(t, err)
	assert.True(t, created)
}
