package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/contre95/playgraph/src/features/metrics"
	"github.com/contre95/playgraph/src/music"
)

// MaxPageSize caps a single identity page.
const MaxPageSize = 1000

// Service maps upstream track ids to the internal ids every other part of
// the graph is keyed by.
type Service struct {
	registry music.Registry
}

// NewService creates a new identity service.
func NewService(registry music.Registry) *Service {
	return &Service{registry: registry}
}

// ResolveOrCreate returns the internal id for externalID, registering it on
// first sight. Repeated and concurrent calls return the same id.
func (s *Service) ResolveOrCreate(ctx context.Context, externalID string) (int64, error) {
	id, err := music.NormalizeExternalID(externalID)
	if err != nil {
		return 0, err
	}
	internalID, err := s.registry.ResolveOrCreate(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve track %s: %w", id, err)
	}
	return internalID, nil
}

// ResolveAll resolves every external id in input order. Malformed ids are
// resolution misses: they are skipped and counted. Any other failure aborts
// the whole call, so a playlist is never aggregated from a partial set.
func (s *Service) ResolveAll(ctx context.Context, externalIDs []string) ([]int64, int, error) {
	ids := make([]int64, 0, len(externalIDs))
	misses := 0
	for _, externalID := range externalIDs {
		id, err := s.ResolveOrCreate(ctx, externalID)
		switch {
		case errors.Is(err, music.ErrInvalidInput), errors.Is(err, music.ErrNotFound):
			slog.Warn("Skipping track that failed to resolve", "external_id", externalID, "error", err)
			metrics.ResolutionMissesTotal.Inc()
			misses++
		case err != nil:
			return nil, misses, err
		default:
			ids = append(ids, id)
		}
	}
	return ids, misses, nil
}

// LookupInternal returns the internal id of externalID or music.ErrNotFound.
func (s *Service) LookupInternal(ctx context.Context, externalID string) (int64, error) {
	id, err := music.NormalizeExternalID(externalID)
	if err != nil {
		return 0, err
	}
	return s.registry.LookupInternal(ctx, id)
}

// LookupExternal returns the external id of internalID or music.ErrNotFound.
func (s *Service) LookupExternal(ctx context.Context, internalID int64) (string, error) {
	if internalID <= 0 {
		return "", fmt.Errorf("%w: internal id must be positive, got %d", music.ErrInvalidInput, internalID)
	}
	return s.registry.LookupExternal(ctx, internalID)
}

// Page returns identities with an internal id greater than after, in
// ascending order. Passing the last id of a page as the next after walks
// the registry without skips or repeats.
func (s *Service) Page(ctx context.Context, after int64, pageSize int) ([]music.TrackIdentity, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		return nil, fmt.Errorf("%w: page size must be between 1 and %d, got %d", music.ErrInvalidInput, MaxPageSize, pageSize)
	}
	page, err := s.registry.PageIdentities(ctx, max(after, 0), pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to page identities after %d: %w", after, err)
	}
	if page == nil {
		page = []music.TrackIdentity{}
	}
	return page, nil
}
