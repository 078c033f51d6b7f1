package playlists

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/contre95/playgraph/src/features/identity"
	"github.com/contre95/playgraph/src/features/pairing"
	"github.com/contre95/playgraph/src/infra/memory"
	"github.com/contre95/playgraph/src/music"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	playlists map[string]*music.Playlist
	search    []music.PlaylistSummary
	fetches   int
}

func (f *fakeSource) FetchPlaylist(_ context.Context, externalID string) (*music.Playlist, error) {
	f.fetches++
	p, ok := f.playlists[externalID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", music.ErrNotFound, externalID)
	}
	cp := *p
	cp.TrackExternalIDs = append([]string(nil), p.TrackExternalIDs...)
	return &cp, nil
}

func (f *fakeSource) SearchPlaylists(context.Context, string, int) ([]music.PlaylistSummary, error) {
	return f.search, nil
}

type env struct {
	lib     *memory.Library
	source  *fakeSource
	service *Service
	agg     *pairing.Aggregator
	ids     *identity.Service
}

func newEnv(withSource bool) *env {
	lib := memory.NewLibrary()
	return newEnvWith(withSource, lib, lib, lib)
}

func newEnvWith(withSource bool, lib *memory.Library, registry music.Registry, pairs music.PairStore) *env {
	e := &env{
		lib: lib,
		source: &fakeSource{playlists: map[string]*music.Playlist{
			"pl1": {Name: "Road Trip", ExternalID: "pl1", TrackExternalIDs: []string{"a", "b", "c"}},
			"pl2": {Name: "Duo", ExternalID: "pl2", TrackExternalIDs: []string{"a", "b", "a", " "}},
		}},
		agg: pairing.NewAggregator(pairs),
		ids: identity.NewService(registry),
	}
	var source music.PlaylistSource
	if withSource {
		source = e.source
	}
	e.service = NewService(lib, e.ids, e.agg, source)
	return e
}

func (e *env) count(t *testing.T, a, b string) int64 {
	t.Helper()
	ctx := context.Background()
	idA, err := e.ids.LookupInternal(ctx, a)
	require.NoError(t, err)
	idB, err := e.ids.LookupInternal(ctx, b)
	require.NoError(t, err)
	edge, err := e.agg.Edge(ctx, idA, idB)
	if errors.Is(err, music.ErrNotFound) {
		return 0
	}
	require.NoError(t, err)
	return edge.Count
}

func TestIngestFetchesFromProviderThenStore(t *testing.T) {
	e := newEnv(true)
	ctx := context.Background()

	report, err := e.service.Ingest(ctx, "pl1")
	require.NoError(t, err)
	assert.Equal(t, IngestReport{PlaylistID: "pl1", Name: "Road Trip", Source: SourceProvider, Created: true, Tracks: 3, Resolved: 3, Pairs: 3}, report)
	assert.Equal(t, int64(1), e.count(t, "a", "b"))

	report, err = e.service.Ingest(ctx, " pl1 ")
	require.NoError(t, err)
	assert.Equal(t, SourceStore, report.Source)
	assert.False(t, report.Created)
	assert.Equal(t, 1, e.source.fetches)
	assert.Equal(t, int64(2), e.count(t, "a", "b"))
	assert.Equal(t, int64(2), e.count(t, "b", "c"))
}

func TestIngestScenario(t *testing.T) {
	e := newEnv(true)
	ctx := context.Background()

	_, err := e.service.Ingest(ctx, "pl1")
	require.NoError(t, err)
	report, err := e.service.Ingest(ctx, "pl2")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Resolved)
	assert.Equal(t, 1, report.Pairs)

	assert.Equal(t, int64(2), e.count(t, "a", "b"))
	assert.Equal(t, int64(1), e.count(t, "a", "c"))
	assert.Equal(t, int64(1), e.count(t, "b", "c"))

	stored, err := e.service.Get(ctx, "pl2")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a"}, stored.TrackExternalIDs)
}

func TestIngestMissingPlaylist(t *testing.T) {
	e := newEnv(true)
	_, err := e.service.Ingest(context.Background(), "nope")
	assert.ErrorIs(t, err, music.ErrNotFound)

	offline := newEnv(false)
	_, err = offline.service.Ingest(context.Background(), "pl1")
	assert.ErrorIs(t, err, music.ErrNotFound)

	_, err = offline.service.Ingest(context.Background(), "")
	assert.ErrorIs(t, err, music.ErrInvalidInput)
}

func TestIngestStoredPlaylistWithoutProvider(t *testing.T) {
	e := newEnv(false)
	ctx := context.Background()
	created, err := e.service.Save(ctx, &music.Playlist{Name: "Saved", ExternalID: "pl9", TrackExternalIDs: []string{"x", "y"}})
	require.NoError(t, err)
	assert.True(t, created)

	report, err := e.service.Ingest(ctx, "pl9")
	require.NoError(t, err)
	assert.Equal(t, SourceStore, report.Source)
	assert.Equal(t, int64(1), e.count(t, "x", "y"))
}

func TestReingestAll(t *testing.T) {
	e := newEnv(true)
	ctx := context.Background()
	_, err := e.service.Ingest(ctx, "pl1")
	require.NoError(t, err)
	_, err = e.service.Ingest(ctx, "pl2")
	require.NoError(t, err)

	var last [2]int
	report, err := e.service.ReingestAll(ctx, func(done, total int) { last = [2]int{done, total} })
	require.NoError(t, err)
	assert.Equal(t, BatchReport{Playlists: 2, Ingested: 2, Pairs: 4}, report)
	assert.Equal(t, [2]int{2, 2}, last)
	assert.Equal(t, int64(4), e.count(t, "a", "b"))
}

func TestDiscoverIngestsOnlyNewPlaylists(t *testing.T) {
	e := newEnv(true)
	e.source.search = []music.PlaylistSummary{{ExternalID: "pl1"}, {ExternalID: "gone"}, {ExternalID: "pl2"}}
	ctx := context.Background()
	_, err := e.service.Ingest(ctx, "pl2")
	require.NoError(t, err)

	report, err := e.service.Discover(ctx, "road", 30, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Playlists)
	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.Pairs)
	assert.Equal(t, int64(2), e.count(t, "a", "b"))

	_, err = newEnv(false).service.Discover(ctx, "road", 30, nil)
	assert.ErrorIs(t, err, music.ErrUpstreamUnavailable)
}

const playlistsCSV = `playlistName,playlistId,trackIds
# scraped playlists
Road Trip,pl1,a;b;c
"Duo, live",pl2,a;b
Broken,,a;b
`

func TestImportIsIdempotent(t *testing.T) {
	e := newEnv(false)
	ctx := context.Background()

	report, err := e.service.Import(ctx, strings.NewReader(playlistsCSV))
	require.NoError(t, err)
	assert.Equal(t, BatchReport{Playlists: 3, Ingested: 2, Failed: 1, Pairs: 4}, report)
	assert.Equal(t, int64(2), e.count(t, "a", "b"))

	report, err = e.service.Import(ctx, strings.NewReader(playlistsCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, int64(2), e.count(t, "a", "b"))

	stored, err := e.service.Get(ctx, "pl2")
	require.NoError(t, err)
	assert.Equal(t, "Duo, live", stored.Name)
}

// failingPairs fails the first n upserts.
type failingPairs struct {
	music.PairStore
	n int
}

func (f *failingPairs) UpsertPairs(ctx context.Context, pairs []music.Pair) error {
	if f.n > 0 {
		f.n--
		return errors.New("disk I/O error")
	}
	return f.PairStore.UpsertPairs(ctx, pairs)
}

// failingRegistry fails the first resolution of one external id.
type failingRegistry struct {
	music.Registry
	failOn string
	failed bool
}

func (f *failingRegistry) ResolveOrCreate(ctx context.Context, externalID string) (int64, error) {
	if externalID == f.failOn && !f.failed {
		f.failed = true
		return 0, errors.New("database is locked")
	}
	return f.Registry.ResolveOrCreate(ctx, externalID)
}

func TestImportRetriesPlaylistWhosePairsFailed(t *testing.T) {
	lib := memory.NewLibrary()
	e := newEnvWith(false, lib, lib, &failingPairs{PairStore: lib, n: 1})
	ctx := context.Background()
	const oneRow = "playlistName,playlistId,trackIds\nRoad Trip,pl1,a;b;c\n"

	report, err := e.service.Import(ctx, strings.NewReader(oneRow))
	require.NoError(t, err)
	assert.Equal(t, BatchReport{Playlists: 1, Failed: 1}, report)
	_, err = e.service.Get(ctx, "pl1")
	assert.ErrorIs(t, err, music.ErrNotFound)

	report, err = e.service.Import(ctx, strings.NewReader(oneRow))
	require.NoError(t, err)
	assert.Equal(t, BatchReport{Playlists: 1, Ingested: 1, Pairs: 3}, report)
	assert.Equal(t, int64(1), e.count(t, "a", "b"))
	assert.Equal(t, int64(1), e.count(t, "a", "c"))
	assert.Equal(t, int64(1), e.count(t, "b", "c"))
}

func TestDiscoverRetriesPlaylistWhosePairsFailed(t *testing.T) {
	lib := memory.NewLibrary()
	e := newEnvWith(true, lib, lib, &failingPairs{PairStore: lib, n: 1})
	e.source.search = []music.PlaylistSummary{{ExternalID: "pl1"}}
	ctx := context.Background()

	report, err := e.service.Discover(ctx, "road", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	report, err = e.service.Discover(ctx, "road", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, 3, report.Pairs)
	assert.Equal(t, int64(1), e.count(t, "b", "c"))
}

func TestIngestAbortsWholePlaylistOnRegistryFailure(t *testing.T) {
	lib := memory.NewLibrary()
	e := newEnvWith(true, lib, &failingRegistry{Registry: lib, failOn: "c"}, lib)
	ctx := context.Background()

	report, err := e.service.Ingest(ctx, "pl1")
	require.Error(t, err)
	assert.ErrorContains(t, err, "database is locked")
	assert.Equal(t, 0, report.Pairs)
	assert.Equal(t, int64(0), e.count(t, "a", "b"))
	_, err = e.service.Get(ctx, "pl1")
	assert.ErrorIs(t, err, music.ErrNotFound)

	report, err = e.service.Ingest(ctx, "pl1")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Pairs)
	assert.Equal(t, 0, report.Misses)
	assert.Equal(t, int64(1), e.count(t, "a", "b"))
	assert.Equal(t, int64(1), e.count(t, "b", "c"))
}

func TestParseCSVRejectsMalformedRows(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("a,b\n"))
	assert.ErrorIs(t, err, music.ErrInvalidInput)

	playlists, err := ParseCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, playlists)
}

func TestPlaylistRoutes(t *testing.T) {
	e := newEnv(true)
	app := fiber.New()
	RegisterRoutes(app, e.service, nil)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/playlists/pl1/ingest", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/playlists/pl1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/playlists/nope/ingest", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/playlists/import", strings.NewReader(playlistsCSV)))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
