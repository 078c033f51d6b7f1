package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/contre95/playgraph/src/features/config"
	"github.com/contre95/playgraph/src/features/metrics"
	"github.com/contre95/playgraph/src/music"
)

// Store is the part of the library the resolver reads from.
type Store interface {
	LookupInternal(ctx context.Context, externalID string) (int64, error)
	Neighbors(ctx context.Context, trackID int64, topK int) ([]music.Neighbor, error)
	GetMetadata(ctx context.Context, trackIDs []int64) (map[int64]music.Metadata, error)
}

// Service returns the tracks most often found together with a given track.
type Service struct {
	store  Store
	config *config.Manager
}

// NewService creates a new recommendation service.
func NewService(store Store, cfgManager *config.Manager) *Service {
	return &Service{store: store, config: cfgManager}
}

// Neighbors returns up to topK neighbors of internalID, strongest first. A
// track without edges yields an empty slice.
func (s *Service) Neighbors(ctx context.Context, internalID int64, topK int) ([]music.Neighbor, error) {
	if topK <= 0 {
		return []music.Neighbor{}, nil
	}
	neighbors, err := s.store.Neighbors(ctx, internalID, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to load neighbors of %d: %w", internalID, err)
	}
	if neighbors == nil {
		neighbors = []music.Neighbor{}
	}
	return neighbors, nil
}

// Recommend returns the strongest neighbors of an external track id joined
// with their metadata. The top limit neighbors are picked first and the ones
// still lacking metadata are then dropped, so fewer than limit results may
// come back. An unknown track yields an empty slice.
func (s *Service) Recommend(ctx context.Context, externalTrackID string, limit int) ([]music.Recommendation, error) {
	defer metrics.ObserveQuery("recommend", time.Now())

	externalTrackID = strings.TrimSpace(externalTrackID)
	if externalTrackID == "" {
		return nil, fmt.Errorf("%w: track id cannot be empty", music.ErrInvalidInput)
	}
	if s.config != nil {
		limit = s.config.Get().Recommend.Clamp(limit)
	}

	internalID, err := s.store.LookupInternal(ctx, externalTrackID)
	if errors.Is(err, music.ErrNotFound) {
		slog.Debug("Recommendation requested for unknown track", "track", externalTrackID)
		return []music.Recommendation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve track %s: %w", externalTrackID, err)
	}

	neighbors, err := s.Neighbors(ctx, internalID, limit)
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return []music.Recommendation{}, nil
	}

	ids := make([]int64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.TrackID
	}
	found, err := s.store.GetMetadata(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata for %d neighbors: %w", len(ids), err)
	}

	recommendations := make([]music.Recommendation, 0, len(neighbors))
	for _, n := range neighbors {
		md, ok := found[n.TrackID]
		if !ok {
			continue
		}
		recommendations = append(recommendations, music.Recommendation{Metadata: md, Count: n.Count})
	}
	slog.Debug("Recommendation completed", "track", externalTrackID, "neighbors", len(neighbors), "results", len(recommendations))
	return recommendations, nil
}
