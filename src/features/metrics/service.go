package metrics

import (
	"context"
	"log/slog"

	"github.com/contre95/playgraph/src/music"
)

// StatsSource is the part of the store the metrics feature reads.
type StatsSource interface {
	Stats(ctx context.Context) (*music.Stats, error)
}

// Service computes graph statistics and mirrors them into Prometheus gauges.
type Service struct {
	source StatsSource
}

// NewService creates a new metrics service.
func NewService(source StatsSource) *Service {
	return &Service{source: source}
}

// Stats returns the current store statistics and refreshes the gauges.
func (s *Service) Stats(ctx context.Context) (*music.Stats, error) {
	stats, err := s.source.Stats(ctx)
	if err != nil {
		return nil, err
	}
	GraphSize.WithLabelValues("tracks").Set(float64(stats.Tracks))
	GraphSize.WithLabelValues("playlists").Set(float64(stats.Playlists))
	GraphSize.WithLabelValues("edges").Set(float64(stats.Edges))
	GraphSize.WithLabelValues("enriched").Set(float64(stats.Enriched))
	GraphSize.WithLabelValues("unenriched").Set(float64(stats.Unenriched))
	slog.Debug("Graph statistics refreshed", "tracks", stats.Tracks, "edges", stats.Edges, "unenriched", stats.Unenriched)
	return stats, nil
}
