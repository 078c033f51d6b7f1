package music

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a lookup misses.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for malformed ids and limits.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstreamUnavailable is returned when the playlist or metadata
	// provider cannot be reached or refuses the request.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// PlaylistSource supplies playlists from the upstream provider.
type PlaylistSource interface {
	// FetchPlaylist returns the playlist with its ordered track ids, or
	// ErrNotFound when the provider does not know it.
	FetchPlaylist(ctx context.Context, externalID string) (*Playlist, error)
	// SearchPlaylists returns playlists whose name matches query.
	SearchPlaylists(ctx context.Context, query string, limit int) ([]PlaylistSummary, error)
}

// MetadataProvider supplies descriptive metadata for upstream track ids.
type MetadataProvider interface {
	// FetchMetadata returns the metadata found for externalIDs keyed by
	// external id. Ids unknown upstream are absent from the result. The
	// returned records carry no TrackID.
	FetchMetadata(ctx context.Context, externalIDs []string) (map[string]Metadata, error)
}

// PlaylistSummary is a search hit from the playlist source.
type PlaylistSummary struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

// JobService defines the interface for job management
type JobService interface {
	StartJob(jobType string, name string, metadata map[string]any) (string, error)
	UpdateJobProgress(jobID string, progress int, message string)
}

// SearchResult is a ranked search hit.
type SearchResult struct {
	Metadata
	Score float64 `json:"score"`
}

// Candidate is a metadata record matching a search needle, with the
// store-computed similarity between its label and the needle.
type Candidate struct {
	Metadata
	Similarity float64
}

// Recommendation is a neighbor decorated with its metadata.
type Recommendation struct {
	Metadata
	Count int64 `json:"count"`
}
