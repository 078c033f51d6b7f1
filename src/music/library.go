package music

import (
	"context"
)

// Registry maps upstream track ids to internal ids.
type Registry interface {
	// ResolveOrCreate returns the internal id for externalID, inserting it
	// when unseen. Concurrent callers racing on the same id get the same
	// answer.
	ResolveOrCreate(ctx context.Context, externalID string) (int64, error)
	LookupInternal(ctx context.Context, externalID string) (int64, error)
	LookupExternal(ctx context.Context, internalID int64) (string, error)
	// PageIdentities returns identities with id > after in ascending id order.
	PageIdentities(ctx context.Context, after int64, pageSize int) ([]TrackIdentity, error)
	MaxTrackID(ctx context.Context) (int64, error)
}

// PlaylistStore keeps raw playlist records.
type PlaylistStore interface {
	// SavePlaylist inserts the playlist unless its external id is already
	// stored. Either way playlist.ID is set to the stored record's id.
	SavePlaylist(ctx context.Context, playlist *Playlist) (created bool, err error)
	GetPlaylist(ctx context.Context, externalID string) (*Playlist, error)
	GetPlaylistExternalIDs(ctx context.Context) ([]string, error)
	// DeletePlaylist removes a stored playlist. Deleting an unknown id is
	// not an error.
	DeletePlaylist(ctx context.Context, externalID string) error
}

// PairStore holds the co-occurrence graph.
type PairStore interface {
	// UpsertPairs inserts new edges at count 1 and increments existing ones
	// by exactly 1, all in one transaction. Pairs must be canonical and
	// distinct.
	UpsertPairs(ctx context.Context, pairs []Pair) error
	GetEdge(ctx context.Context, pair Pair) (*Edge, error)
	// Neighbors returns up to topK edges touching trackID, strongest first.
	Neighbors(ctx context.Context, trackID int64, topK int) ([]Neighbor, error)
}

// MetadataStore holds enrichment records and the search candidates derived
// from them.
type MetadataStore interface {
	FindUnenriched(ctx context.Context, query UnenrichedQuery) (*UnenrichedPage, error)
	// BulkInsertMetadata inserts all records in one transaction, ignoring
	// records whose track or external id is already enriched.
	BulkInsertMetadata(ctx context.Context, records []Metadata) (inserted int, err error)
	GetMetadata(ctx context.Context, trackIDs []int64) (map[int64]Metadata, error)
	// SearchCandidates returns every record whose display name, performer
	// name or label contains needle case-insensitively, with the similarity
	// between its label and needle.
	SearchCandidates(ctx context.Context, needle string) ([]Candidate, error)
}

// Library is the storage port for the whole graph.
type Library interface {
	Registry
	PlaylistStore
	PairStore
	MetadataStore

	Stats(ctx context.Context) (*Stats, error)
	Reset(ctx context.Context) error
	Close() error
}

// UnenrichedQuery selects identities lacking metadata. After is an exclusive
// lower bound and Until, when positive, an inclusive upper bound on the id.
type UnenrichedQuery struct {
	After int64
	Until int64
	Limit int
}

// UnenrichedPage is a capped sample of identities lacking metadata. Total
// counts every such identity regardless of the query bounds.
type UnenrichedPage struct {
	Total  int             `json:"total_missing"`
	Sample []TrackIdentity `json:"sample"`
}

// Stats summarizes the store contents.
type Stats struct {
	Tracks     int `json:"tracks"`
	Playlists  int `json:"playlists"`
	Edges      int `json:"edges"`
	Enriched   int `json:"enriched"`
	Unenriched int `json:"unenriched"`
}
