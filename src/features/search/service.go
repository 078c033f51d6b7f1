package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/contre95/playgraph/src/features/config"
	"github.com/contre95/playgraph/src/features/metrics"
	"github.com/contre95/playgraph/src/music"
)

// Service resolves free text queries against enriched metadata.
type Service struct {
	store  music.MetadataStore
	config *config.Manager
}

// NewService creates a new search service.
func NewService(store music.MetadataStore, cfgManager *config.Manager) *Service {
	return &Service{store: store, config: cfgManager}
}

// Search returns up to limit ranked results for text. A blank query yields
// an empty result. A non-positive limit falls back to the configured default.
func (s *Service) Search(ctx context.Context, text string, limit int) ([]music.SearchResult, error) {
	defer metrics.ObserveQuery("search", time.Now())

	query := NormalizeQuery(text)
	if query == "" {
		return []music.SearchResult{}, nil
	}
	if s.config != nil {
		limit = s.config.Get().Search.Clamp(limit)
	}

	candidates, err := s.store.SearchCandidates(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load search candidates: %w", err)
	}
	results := Rank(query, candidates, limit)
	slog.Debug("Search completed", "query", query, "candidates", len(candidates), "results", len(results))
	return results, nil
}
