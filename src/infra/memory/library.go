package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/contre95/playgraph/src/features/search"
	"github.com/contre95/playgraph/src/music"
)

// Library is an in-process implementation of the music.Library interface.
// Every operation holds a single lock, which gives the same insert-or-fetch,
// insert-or-increment and insert-or-ignore guarantees as the SQL stores.
type Library struct {
	mu sync.RWMutex

	nextTrackID    int64
	nextPlaylistID int64

	tracks     map[int64]string // internal -> external
	byExternal map[string]int64

	playlists      map[string]*music.Playlist
	playlistsOrder []string

	edges map[music.Pair]int64

	metadata           map[int64]music.Metadata
	enrichedExternalID map[string]struct{}
}

// NewLibrary creates an empty in-memory library.
func NewLibrary() *Library {
	l := &Library{}
	l.reset()
	return l
}

func (l *Library) reset() {
	l.nextTrackID = 0
	l.nextPlaylistID = 0
	l.tracks = make(map[int64]string)
	l.byExternal = make(map[string]int64)
	l.playlists = make(map[string]*music.Playlist)
	l.playlistsOrder = nil
	l.edges = make(map[music.Pair]int64)
	l.metadata = make(map[int64]music.Metadata)
	l.enrichedExternalID = make(map[string]struct{})
}

// ResolveOrCreate returns the internal id of externalID, inserting it when unseen.
func (l *Library) ResolveOrCreate(_ context.Context, externalID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, ok := l.byExternal[externalID]; ok {
		return id, nil
	}
	l.nextTrackID++
	l.tracks[l.nextTrackID] = externalID
	l.byExternal[externalID] = l.nextTrackID
	return l.nextTrackID, nil
}

func (l *Library) LookupInternal(_ context.Context, externalID string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if id, ok := l.byExternal[externalID]; ok {
		return id, nil
	}
	return 0, music.ErrNotFound
}

func (l *Library) LookupExternal(_ context.Context, internalID int64) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if externalID, ok := l.tracks[internalID]; ok {
		return externalID, nil
	}
	return "", music.ErrNotFound
}

// PageIdentities returns up to pageSize identities with id > after, ascending.
// Ids are dense, so the page is read straight off the counter range.
func (l *Library) PageIdentities(_ context.Context, after int64, pageSize int) ([]music.TrackIdentity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var page []music.TrackIdentity
	for id := max(after, 0) + 1; id <= l.nextTrackID && len(page) < pageSize; id++ {
		if externalID, ok := l.tracks[id]; ok {
			page = append(page, music.TrackIdentity{ID: id, ExternalID: externalID})
		}
	}
	return page, nil
}

func (l *Library) MaxTrackID(_ context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextTrackID, nil
}

// SavePlaylist stores a copy of playlist unless its external id is known.
func (l *Library) SavePlaylist(_ context.Context, playlist *music.Playlist) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.playlists[playlist.ExternalID]; ok {
		playlist.ID = existing.ID
		return false, nil
	}
	l.nextPlaylistID++
	playlist.ID = l.nextPlaylistID
	stored := *playlist
	stored.TrackExternalIDs = slices.Clone(playlist.TrackExternalIDs)
	l.playlists[playlist.ExternalID] = &stored
	l.playlistsOrder = append(l.playlistsOrder, playlist.ExternalID)
	return true, nil
}

func (l *Library) GetPlaylist(_ context.Context, externalID string) (*music.Playlist, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stored, ok := l.playlists[externalID]
	if !ok {
		return nil, music.ErrNotFound
	}
	playlist := *stored
	playlist.TrackExternalIDs = slices.Clone(stored.TrackExternalIDs)
	return &playlist, nil
}

func (l *Library) GetPlaylistExternalIDs(_ context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.playlistsOrder), nil
}

func (l *Library) DeletePlaylist(_ context.Context, externalID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.playlists[externalID]; !ok {
		return nil
	}
	delete(l.playlists, externalID)
	l.playlistsOrder = slices.DeleteFunc(l.playlistsOrder, func(id string) bool { return id == externalID })
	return nil
}

// UpsertPairs validates the whole batch before touching the graph, so a
// rejected batch leaves no trace.
func (l *Library) UpsertPairs(_ context.Context, pairs []music.Pair) error {
	pairs, err := music.CanonicalPairs(pairs)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range pairs {
		if _, ok := l.tracks[p.Low]; !ok {
			return fmt.Errorf("pair (%d, %d) references unknown track %d", p.Low, p.High, p.Low)
		}
		if _, ok := l.tracks[p.High]; !ok {
			return fmt.Errorf("pair (%d, %d) references unknown track %d", p.Low, p.High, p.High)
		}
	}
	for _, p := range pairs {
		l.edges[p]++
	}
	return nil
}

func (l *Library) GetEdge(_ context.Context, pair music.Pair) (*music.Edge, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	count, ok := l.edges[pair]
	if !ok {
		return nil, music.ErrNotFound
	}
	return &music.Edge{Pair: pair, Count: count}, nil
}

func (l *Library) Neighbors(_ context.Context, trackID int64, topK int) ([]music.Neighbor, error) {
	if topK <= 0 {
		return nil, nil
	}
	l.mu.RLock()
	var neighbors []music.Neighbor
	for pair, count := range l.edges {
		if pair.Low == trackID || pair.High == trackID {
			neighbors = append(neighbors, music.Neighbor{TrackID: pair.Other(trackID), Count: count})
		}
	}
	l.mu.RUnlock()

	slices.SortFunc(neighbors, func(a, b music.Neighbor) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.TrackID, b.TrackID)
	})
	if len(neighbors) > topK {
		neighbors = neighbors[:topK]
	}
	return neighbors, nil
}

func (l *Library) FindUnenriched(_ context.Context, query music.UnenrichedQuery) (*music.UnenrichedPage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	page := &music.UnenrichedPage{Total: len(l.tracks) - len(l.metadata), Sample: []music.TrackIdentity{}}
	upper := l.nextTrackID
	if query.Until > 0 {
		upper = min(upper, query.Until)
	}
	for id := max(query.After, 0) + 1; id <= upper && len(page.Sample) < query.Limit; id++ {
		if _, enriched := l.metadata[id]; enriched {
			continue
		}
		if externalID, ok := l.tracks[id]; ok {
			page.Sample = append(page.Sample, music.TrackIdentity{ID: id, ExternalID: externalID})
		}
	}
	return page, nil
}

// BulkInsertMetadata inserts records whose track and external id are both
// new; the rest are ignored. Unknown tracks fail the whole batch.
func (l *Library) BulkInsertMetadata(_ context.Context, records []music.Metadata) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range records {
		if _, ok := l.tracks[r.TrackID]; !ok {
			return 0, fmt.Errorf("metadata %s references unknown track %d", r.ExternalID, r.TrackID)
		}
	}
	inserted := 0
	for _, r := range records {
		if _, ok := l.metadata[r.TrackID]; ok {
			continue
		}
		if _, ok := l.enrichedExternalID[r.ExternalID]; ok {
			continue
		}
		l.metadata[r.TrackID] = r
		l.enrichedExternalID[r.ExternalID] = struct{}{}
		inserted++
	}
	return inserted, nil
}

func (l *Library) GetMetadata(_ context.Context, trackIDs []int64) (map[int64]music.Metadata, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make(map[int64]music.Metadata, len(trackIDs))
	for _, id := range trackIDs {
		if m, ok := l.metadata[id]; ok {
			result[id] = m
		}
	}
	return result, nil
}

func (l *Library) SearchCandidates(_ context.Context, needle string) ([]music.Candidate, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var candidates []music.Candidate
	for _, m := range l.metadata {
		label := m.Label()
		if !strings.Contains(strings.ToLower(m.DisplayName), needle) &&
			!strings.Contains(strings.ToLower(m.PerformerName), needle) &&
			!strings.Contains(strings.ToLower(label), needle) {
			continue
		}
		candidates = append(candidates, music.Candidate{Metadata: m, Similarity: search.Similarity(label, needle)})
	}
	return candidates, nil
}

func (l *Library) Stats(_ context.Context) (*music.Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &music.Stats{
		Tracks:     len(l.tracks),
		Playlists:  len(l.playlists),
		Edges:      len(l.edges),
		Enriched:   len(l.metadata),
		Unenriched: len(l.tracks) - len(l.metadata),
	}, nil
}

func (l *Library) Reset(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
	return nil
}

func (l *Library) Close() error {
	return nil
}
