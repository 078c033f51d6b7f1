package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/contre95/playgraph/src/features/config"
	"github.com/contre95/playgraph/src/features/metrics"
	"github.com/contre95/playgraph/src/music"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// tokenRefreshMargin is how long before expiry a cached token is replaced.
const tokenRefreshMargin = 60 * time.Second

// Spotify Web API response structures
type spotifyToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type spotifyTrackRef struct {
	ID *string `json:"id"`
}

type spotifyPlaylistItem struct {
	Track *spotifyTrackRef `json:"track"`
}

type spotifyPlaylistTracks struct {
	Items []spotifyPlaylistItem `json:"items"`
	Next  *string               `json:"next"`
}

type spotifyPlaylist struct {
	ID     string                `json:"id"`
	Name   string                `json:"name"`
	Tracks spotifyPlaylistTracks `json:"tracks"`
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []spotifyArtist `json:"artists"`
	Album   struct {
		Name string `json:"name"`
	} `json:"album"`
}

type spotifyTracksResponse struct {
	Tracks []*spotifyTrack `json:"tracks"`
}

type spotifySearchResponse struct {
	Playlists struct {
		Items []*struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"items"`
	} `json:"playlists"`
}

// SpotifyClient implements music.PlaylistSource and music.MetadataProvider
// against the Spotify Web API using the client credentials flow.
type SpotifyClient struct {
	cfg     config.Provider
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	now     func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewSpotifyClient creates a new Spotify client from the provider config.
func NewSpotifyClient(cfg config.Provider) *SpotifyClient {
	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	settings := gobreaker.Settings{
		Name:        "spotify",
		MaxRequests: 1,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, music.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Provider circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &SpotifyClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1)),
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		now:     time.Now,
	}
}

// FetchPlaylist fetches a playlist and every page of its tracks.
func (c *SpotifyClient) FetchPlaylist(ctx context.Context, externalID string) (*music.Playlist, error) {
	id, err := music.NormalizeExternalID(externalID)
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, "playlist", c.apiURL("/v1/playlists/"+url.PathEscape(id)))
	if err != nil {
		return nil, err
	}
	var resp spotifyPlaylist
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode playlist %s: %v", music.ErrUpstreamUnavailable, id, err)
	}

	playlist := &music.Playlist{Name: resp.Name, ExternalID: id}
	page := resp.Tracks
	for {
		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == nil {
				continue
			}
			if trackID := strings.TrimSpace(*item.Track.ID); trackID != "" {
				playlist.TrackExternalIDs = append(playlist.TrackExternalIDs, trackID)
			}
		}
		if page.Next == nil || *page.Next == "" {
			break
		}
		body, err := c.get(ctx, "playlist_tracks", *page.Next)
		if err != nil {
			return nil, err
		}
		page = spotifyPlaylistTracks{}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("%w: failed to decode tracks of playlist %s: %v", music.ErrUpstreamUnavailable, id, err)
		}
	}
	slog.Debug("Fetched playlist from provider", "playlist", id, "tracks", len(playlist.TrackExternalIDs))
	return playlist, nil
}

// SearchPlaylists searches the provider for playlists matching query.
func (c *SpotifyClient) SearchPlaylists(ctx context.Context, query string, limit int) ([]music.PlaylistSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: playlist search query cannot be empty", music.ErrInvalidInput)
	}
	limit = min(max(limit, 1), 50)
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "playlist")
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "search", c.apiURL("/v1/search?"+params.Encode()))
	if err != nil {
		return nil, err
	}
	var resp spotifySearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode search response: %v", music.ErrUpstreamUnavailable, err)
	}
	summaries := make([]music.PlaylistSummary, 0, len(resp.Playlists.Items))
	for _, item := range resp.Playlists.Items {
		if item == nil || item.ID == "" {
			continue
		}
		summaries = append(summaries, music.PlaylistSummary{ExternalID: item.ID, Name: item.Name})
	}
	return summaries, nil
}

// FetchMetadata fetches track metadata in chunks of the configured batch size.
func (c *SpotifyClient) FetchMetadata(ctx context.Context, externalIDs []string) (map[string]music.Metadata, error) {
	batchSize := min(max(c.cfg.BatchSize, 1), 50)
	found := make(map[string]music.Metadata, len(externalIDs))
	for start := 0; start < len(externalIDs); start += batchSize {
		chunk := externalIDs[start:min(start+batchSize, len(externalIDs))]
		body, err := c.get(ctx, "tracks", c.apiURL("/v1/tracks?ids="+url.QueryEscape(strings.Join(chunk, ","))))
		if err != nil {
			return nil, err
		}
		var resp spotifyTracksResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: failed to decode tracks response: %v", music.ErrUpstreamUnavailable, err)
		}
		// Tracks come back in request order, null for unknown ids. A relinked
		// track carries the id of its playable copy, so results are keyed
		// by position.
		for i, track := range resp.Tracks {
			if i >= len(chunk) {
				break
			}
			if track == nil || track.ID == "" {
				continue
			}
			requested := chunk[i]
			md := music.Metadata{
				ExternalID:  requested,
				DisplayName: track.Name,
				ReleaseName: track.Album.Name,
			}
			if len(track.Artists) > 0 {
				md.PerformerName = track.Artists[0].Name
				md.PerformerExternalID = track.Artists[0].ID
			}
			found[requested] = md
		}
	}
	return found, nil
}

func (c *SpotifyClient) apiURL(path string) string {
	return strings.TrimRight(c.cfg.APIURL, "/") + path
}

// get performs a rate limited, circuit broken GET and returns the body.
func (c *SpotifyClient) get(ctx context.Context, endpoint, target string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.doGet(ctx, target)
	})
	metrics.RecordProviderRequest(endpoint, err)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", music.ErrUpstreamUnavailable, err)
	}
	return body, err
}

func (c *SpotifyClient) doGet(ctx context.Context, target string) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "Playgraph/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", music.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", music.ErrUpstreamUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", music.ErrNotFound, target)
	case resp.StatusCode == http.StatusUnauthorized:
		c.invalidateToken()
	}
	return nil, fmt.Errorf("%w: provider returned status %d", music.ErrUpstreamUnavailable, resp.StatusCode)
}

// accessToken returns the cached token, fetching a new one when it is
// missing or about to expire.
func (c *SpotifyClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request failed: %v", music.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token request returned status %d", music.ErrUpstreamUnavailable, resp.StatusCode)
	}
	var tok spotifyToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: failed to decode token: %v", music.ErrUpstreamUnavailable, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", music.ErrUpstreamUnavailable)
	}

	c.token = tok.AccessToken
	c.expiresAt = c.now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenRefreshMargin)
	slog.Debug("Refreshed provider access token", "expires_at", c.expiresAt)
	return c.token, nil
}

func (c *SpotifyClient) invalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// Name returns the provider name.
func (c *SpotifyClient) Name() string { return "spotify" }

// IsEnabled returns whether the provider is enabled.
func (c *SpotifyClient) IsEnabled() bool { return c.cfg.Enabled }
