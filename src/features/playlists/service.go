package playlists

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/contre95/playgraph/src/features/identity"
	"github.com/contre95/playgraph/src/features/metrics"
	"github.com/contre95/playgraph/src/features/pairing"
	"github.com/contre95/playgraph/src/music"
)

// Where an ingested playlist was read from.
const (
	SourceStore    = "store"
	SourceProvider = "provider"
	SourceImport   = "import"
)

// IngestReport describes what one playlist ingest did.
type IngestReport struct {
	PlaylistID string `json:"playlist_id"`
	Name       string `json:"name"`
	Source     string `json:"source"`
	Created    bool   `json:"created"`
	Tracks     int    `json:"tracks"`
	Resolved   int    `json:"resolved"`
	Misses     int    `json:"misses"`
	Pairs      int    `json:"pairs"`
}

// BatchReport summarizes an ingest over many playlists.
type BatchReport struct {
	Playlists int            `json:"playlists"`
	Ingested  int            `json:"ingested"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Pairs     int            `json:"pairs"`
	Reports   []IngestReport `json:"reports,omitempty"`
}

// Service is the domain service for the playlists feature.
type Service struct {
	store      music.PlaylistStore
	identity   *identity.Service
	aggregator *pairing.Aggregator
	source     music.PlaylistSource
}

// NewService creates a new playlists service. source may be nil, in which
// case only stored playlists can be ingested.
func NewService(store music.PlaylistStore, identityService *identity.Service, aggregator *pairing.Aggregator, source music.PlaylistSource) *Service {
	return &Service{
		store:      store,
		identity:   identityService,
		aggregator: aggregator,
		source:     source,
	}
}

// Save stores playlist unless a playlist with the same external id exists.
// It reports whether a new record was written.
func (s *Service) Save(ctx context.Context, playlist *music.Playlist) (bool, error) {
	if err := playlist.Validate(); err != nil {
		return false, err
	}
	created, err := s.store.SavePlaylist(ctx, playlist)
	if err != nil {
		return false, fmt.Errorf("failed to save playlist %s: %w", playlist.ExternalID, err)
	}
	slog.Debug("Playlist saved", "playlist", playlist.ExternalID, "created", created, "tracks", len(playlist.TrackExternalIDs))
	return created, nil
}

// Get returns a stored playlist or music.ErrNotFound.
func (s *Service) Get(ctx context.Context, externalID string) (*music.Playlist, error) {
	id, err := music.NormalizeExternalID(externalID)
	if err != nil {
		return nil, err
	}
	return s.store.GetPlaylist(ctx, id)
}

// List returns the external ids of every stored playlist in insertion order.
func (s *Service) List(ctx context.Context) ([]string, error) {
	ids, err := s.store.GetPlaylistExternalIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Ingest adds one occurrence of every track pair of a playlist to the graph.
// The playlist is read from the store, or fetched from the provider and
// saved when the store does not have it. Every call contributes one more
// increment per pair, so ingesting a playlist twice counts it twice.
func (s *Service) Ingest(ctx context.Context, externalPlaylistID string) (IngestReport, error) {
	id, err := music.NormalizeExternalID(externalPlaylistID)
	if err != nil {
		return IngestReport{}, err
	}

	playlist, err := s.store.GetPlaylist(ctx, id)
	source := SourceStore
	created := false
	switch {
	case errors.Is(err, music.ErrNotFound):
		if s.source == nil {
			metrics.PlaylistIngestsTotal.WithLabelValues("not_found").Inc()
			return IngestReport{PlaylistID: id}, fmt.Errorf("playlist %s is not stored and no provider is configured: %w", id, music.ErrNotFound)
		}
		playlist, err = s.source.FetchPlaylist(ctx, id)
		if err != nil {
			metrics.PlaylistIngestsTotal.WithLabelValues(failureLabel(err)).Inc()
			return IngestReport{PlaylistID: id}, fmt.Errorf("failed to fetch playlist %s: %w", id, err)
		}
		if created, err = s.Save(ctx, playlist); err != nil {
			metrics.PlaylistIngestsTotal.WithLabelValues("failed").Inc()
			return IngestReport{PlaylistID: id}, err
		}
		source = SourceProvider
	case err != nil:
		metrics.PlaylistIngestsTotal.WithLabelValues("failed").Inc()
		return IngestReport{PlaylistID: id}, fmt.Errorf("failed to load playlist %s: %w", id, err)
	}

	report, err := s.aggregate(ctx, playlist)
	report.Source = source
	report.Created = created
	if err != nil {
		metrics.PlaylistIngestsTotal.WithLabelValues("failed").Inc()
		if created {
			err = s.forget(ctx, playlist, err)
		}
		return report, err
	}
	metrics.PlaylistIngestsTotal.WithLabelValues(source).Inc()
	slog.Info("Playlist ingested", "playlist", id, "source", source, "tracks", report.Tracks, "pairs", report.Pairs, "misses", report.Misses)
	return report, nil
}

// ReingestAll aggregates every stored playlist again. Counts grow by one per
// pair and playlist on every run, so this is an offline repair tool for a
// graph that was reset or lost. It stops at the first failure.
func (s *Service) ReingestAll(ctx context.Context, progress func(done, total int)) (BatchReport, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return BatchReport{}, err
	}
	report := BatchReport{Playlists: len(ids)}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		playlist, err := s.store.GetPlaylist(ctx, id)
		if err != nil {
			report.Failed++
			return report, fmt.Errorf("failed to load playlist %s: %w", id, err)
		}
		one, err := s.aggregate(ctx, playlist)
		if err != nil {
			report.Failed++
			return report, err
		}
		report.Ingested++
		report.Pairs += one.Pairs
		if progress != nil {
			progress(i+1, len(ids))
		}
	}
	slog.Info("Re-aggregated stored playlists", "playlists", report.Ingested, "pairs", report.Pairs)
	return report, nil
}

// Discover searches the provider for playlists matching query and ingests
// the ones not stored yet. Playlists that fail are skipped and counted.
func (s *Service) Discover(ctx context.Context, query string, limit int, progress func(done, total int)) (BatchReport, error) {
	if s.source == nil {
		return BatchReport{}, fmt.Errorf("%w: no playlist provider configured", music.ErrUpstreamUnavailable)
	}
	found, err := s.source.SearchPlaylists(ctx, query, limit)
	if err != nil {
		return BatchReport{}, fmt.Errorf("failed to search playlists for %q: %w", query, err)
	}

	report := BatchReport{Playlists: len(found)}
	for i, summary := range found {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		one, err := s.ingestNew(ctx, summary.ExternalID)
		switch {
		case err != nil:
			slog.Warn("Skipping discovered playlist", "playlist", summary.ExternalID, "name", summary.Name, "error", err)
			report.Failed++
		case !one.Created:
			report.Skipped++
		default:
			report.Ingested++
			report.Pairs += one.Pairs
			report.Reports = append(report.Reports, one)
		}
		if progress != nil {
			progress(i+1, len(found))
		}
	}
	return report, nil
}

// ingestNew fetches a playlist from the provider and aggregates it only if
// it was not stored before.
func (s *Service) ingestNew(ctx context.Context, externalID string) (IngestReport, error) {
	if _, err := s.store.GetPlaylist(ctx, externalID); err == nil {
		return IngestReport{PlaylistID: externalID, Source: SourceStore}, nil
	} else if !errors.Is(err, music.ErrNotFound) {
		return IngestReport{PlaylistID: externalID}, err
	}
	playlist, err := s.source.FetchPlaylist(ctx, externalID)
	if err != nil {
		metrics.PlaylistIngestsTotal.WithLabelValues(failureLabel(err)).Inc()
		return IngestReport{PlaylistID: externalID}, err
	}
	return s.saveAndAggregate(ctx, playlist, SourceProvider)
}

// saveAndAggregate saves playlist and aggregates it when the save created
// a new record. If the aggregation fails the new record is removed again,
// so a retry sees the playlist as new and applies all of its pairs.
func (s *Service) saveAndAggregate(ctx context.Context, playlist *music.Playlist, source string) (IngestReport, error) {
	created, err := s.Save(ctx, playlist)
	if err != nil {
		return IngestReport{PlaylistID: playlist.ExternalID}, err
	}
	if !created {
		return IngestReport{PlaylistID: playlist.ExternalID, Name: playlist.Name, Source: source}, nil
	}
	report, err := s.aggregate(ctx, playlist)
	report.Source = source
	report.Created = true
	if err != nil {
		metrics.PlaylistIngestsTotal.WithLabelValues("failed").Inc()
		return report, s.forget(ctx, playlist, err)
	}
	metrics.PlaylistIngestsTotal.WithLabelValues(source).Inc()
	return report, nil
}

// aggregate resolves the playlist tracks and applies their pairs.
func (s *Service) aggregate(ctx context.Context, playlist *music.Playlist) (IngestReport, error) {
	report := IngestReport{
		PlaylistID: playlist.ExternalID,
		Name:       playlist.Name,
		Tracks:     len(playlist.TrackExternalIDs),
	}
	ids, misses, err := s.identity.ResolveAll(ctx, playlist.TrackExternalIDs)
	report.Misses = misses
	if err != nil {
		return report, fmt.Errorf("failed to resolve tracks of playlist %s: %w", playlist.ExternalID, err)
	}
	result, err := s.aggregator.Aggregate(ctx, ids)
	report.Resolved = result.DistinctTracks
	if err != nil {
		return report, fmt.Errorf("failed to aggregate playlist %s: %w", playlist.ExternalID, err)
	}
	report.Pairs = result.Pairs
	return report, nil
}

// forget removes a playlist saved by a failed ingest and returns cause.
func (s *Service) forget(ctx context.Context, playlist *music.Playlist, cause error) error {
	if err := s.store.DeletePlaylist(context.WithoutCancel(ctx), playlist.ExternalID); err != nil {
		slog.Error("Failed to remove playlist after failed aggregation", "playlist", playlist.ExternalID, "error", err)
		return errors.Join(cause, fmt.Errorf("failed to remove playlist %s: %w", playlist.ExternalID, err))
	}
	return cause
}

func failureLabel(err error) string {
	switch {
	case errors.Is(err, music.ErrNotFound):
		return "not_found"
	case errors.Is(err, music.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	}
	return "failed"
}
