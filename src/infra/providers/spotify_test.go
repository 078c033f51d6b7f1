package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/contre95/playgraph/src/features/config"
	"github.com/contre95/playgraph/src/music"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSpotify struct {
	server      *httptest.Server
	tokenCalls  atomic.Int32
	trackCalls  atomic.Int32
	failTracks  atomic.Bool
	tokenExpiry int
}

func newFakeSpotify(t *testing.T) *fakeSpotify {
	t.Helper()
	f := &fakeSpotify{tokenExpiry: 3600}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" || r.FormValue("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		n := f.tokenCalls.Add(1)
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":%d}`, n, f.tokenExpiry)
	})
	mux.HandleFunc("/v1/playlists/pl1", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `{"id":"pl1","name":"Road Trip","tracks":{"items":[
			{"track":{"id":"t1"}},{"track":null},{"track":{"id":null}},{"track":{"id":" t2 "}}
		],"next":"%s/v1/playlists/pl1/tracks?offset=4"}}`, f.server.URL)
	})
	mux.HandleFunc("/v1/playlists/pl1/tracks", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[{"track":{"id":"t3"}},{"track":{"id":"t1"}}],"next":null}`)
	})
	mux.HandleFunc("/v1/tracks", func(w http.ResponseWriter, r *http.Request) {
		f.trackCalls.Add(1)
		if f.failTracks.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var parts []string
		for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
			if id == "unknown" {
				parts = append(parts, "null")
				continue
			}
			returned := id
			if id == "relinked" {
				// Track relinking answers with the id of the playable copy.
				returned = "relinked-copy"
			}
			parts = append(parts, fmt.Sprintf(`{"id":%q,"name":"Song %s","artists":[{"id":"a-%s","name":"Artist %s"},{"id":"x","name":"Feat"}],"album":{"name":"Album %s"}}`, returned, id, id, id, id))
		}
		fmt.Fprintf(w, `{"tracks":[%s]}`, strings.Join(parts, ","))
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "playlist" || r.URL.Query().Get("q") != "summer hits" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"playlists":{"items":[{"id":"p1","name":"Summer Hits"},null,{"id":"p2","name":"Summer Hits 2"}]}}`)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeSpotify) client(maxFailures uint32) *SpotifyClient {
	return NewSpotifyClient(config.Provider{
		Enabled:           true,
		ClientID:          "id",
		ClientSecret:      "secret",
		TokenURL:          f.server.URL + "/api/token",
		APIURL:            f.server.URL,
		RequestsPerSecond: 1000,
		Burst:             10,
		BatchSize:         2,
		Workers:           1,
		Breaker:           config.Breaker{MaxFailures: maxFailures, Timeout: time.Minute},
	})
}

func TestFetchPlaylistFollowsPagination(t *testing.T) {
	fake := newFakeSpotify(t)
	client := fake.client(5)

	playlist, err := client.FetchPlaylist(context.Background(), "pl1")
	require.NoError(t, err)
	assert.Equal(t, "Road Trip", playlist.Name)
	assert.Equal(t, "pl1", playlist.ExternalID)
	assert.Equal(t, []string{"t1", "t2", "t3", "t1"}, playlist.TrackExternalIDs)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())
}

func TestFetchPlaylistNotFound(t *testing.T) {
	fake := newFakeSpotify(t)
	client := fake.client(1)

	_, err := client.FetchPlaylist(context.Background(), "missing")
	assert.ErrorIs(t, err, music.ErrNotFound)

	// A miss does not count against the breaker.
	_, err = client.FetchPlaylist(context.Background(), "pl1")
	assert.NoError(t, err)
}

func TestFetchMetadataBatches(t *testing.T) {
	fake := newFakeSpotify(t)
	client := fake.client(5)

	found, err := client.FetchMetadata(context.Background(), []string{"t1", "unknown", "t3"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.trackCalls.Load())
	require.Len(t, found, 2)
	assert.Equal(t, music.Metadata{
		ExternalID:          "t1",
		DisplayName:         "Song t1",
		PerformerName:       "Artist t1",
		PerformerExternalID: "a-t1",
		ReleaseName:         "Album t1",
	}, found["t1"])
	assert.NotContains(t, found, "unknown")
}

func TestFetchMetadataKeysRelinkedTracksByRequestedID(t *testing.T) {
	fake := newFakeSpotify(t)
	client := fake.client(5)

	found, err := client.FetchMetadata(context.Background(), []string{"t1", "unknown", "relinked"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Contains(t, found, "relinked")
	assert.Equal(t, "relinked", found["relinked"].ExternalID)
	assert.Equal(t, "Song relinked", found["relinked"].DisplayName)
	assert.NotContains(t, found, "relinked-copy")
	assert.Equal(t, "Song t1", found["t1"].DisplayName)
}

func TestSearchPlaylists(t *testing.T) {
	fake := newFakeSpotify(t)
	client := fake.client(5)

	found, err := client.SearchPlaylists(context.Background(), "  summer hits ", 30)
	require.NoError(t, err)
	assert.Equal(t, []music.PlaylistSummary{{ExternalID: "p1", Name: "Summer Hits"}, {ExternalID: "p2", Name: "Summer Hits 2"}}, found)

	_, err = client.SearchPlaylists(context.Background(), " ", 30)
	assert.ErrorIs(t, err, music.ErrInvalidInput)
}

func TestTokenRefreshedBeforeExpiry(t *testing.T) {
	fake := newFakeSpotify(t)
	fake.tokenExpiry = 120
	client := fake.client(5)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	_, err := client.FetchMetadata(context.Background(), []string{"t1"})
	require.NoError(t, err)
	now = now.Add(59 * time.Second)
	_, err = client.FetchMetadata(context.Background(), []string{"t1"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())

	now = now.Add(time.Second)
	_, err = client.FetchMetadata(context.Background(), []string{"t1"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	fake := newFakeSpotify(t)
	fake.failTracks.Store(true)
	client := fake.client(2)

	for range 2 {
		_, err := client.FetchMetadata(context.Background(), []string{"t1"})
		assert.ErrorIs(t, err, music.ErrUpstreamUnavailable)
	}
	_, err := client.FetchMetadata(context.Background(), []string{"t1"})
	assert.ErrorIs(t, err, music.ErrUpstreamUnavailable)
	assert.Equal(t, int32(2), fake.trackCalls.Load())
}
