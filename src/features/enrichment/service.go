package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/contre95/playgraph/src/features/config"
	"github.com/contre95/playgraph/src/features/metrics"
	"github.com/contre95/playgraph/src/music"
	"golang.org/x/sync/errgroup"
)

// ErrUpstreamUnavailable is returned when the metadata provider cannot serve
// a request. Tracks it could not describe stay unenriched for a later pass.
var ErrUpstreamUnavailable = music.ErrUpstreamUnavailable

// Store is the part of the library the enricher works against.
type Store interface {
	MaxTrackID(ctx context.Context) (int64, error)
	FindUnenriched(ctx context.Context, query music.UnenrichedQuery) (*music.UnenrichedPage, error)
	BulkInsertMetadata(ctx context.Context, records []music.Metadata) (int, error)
}

// BackfillReport tracks the progress of one backfill pass.
type BackfillReport struct {
	Pages     int   `json:"pages"`
	Visited   int   `json:"visited"`
	Inserted  int   `json:"inserted"`
	Missing   int   `json:"missing"`
	Failed    int   `json:"failed"`
	Cursor    int64 `json:"cursor"`
	Until     int64 `json:"until"`
	Remaining int   `json:"remaining"`
}

// Service attaches provider metadata to identities that lack it.
type Service struct {
	store    Store
	provider music.MetadataProvider
	config   *config.Manager
}

// NewService creates a new enrichment service. provider may be nil, in which
// case backfills fail with ErrUpstreamUnavailable.
func NewService(store Store, provider music.MetadataProvider, cfgManager *config.Manager) *Service {
	return &Service{store: store, provider: provider, config: cfgManager}
}

// FindUnenriched returns how many identities lack metadata and the first
// limit of them by ascending internal id.
func (s *Service) FindUnenriched(ctx context.Context, limit int) (*music.UnenrichedPage, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit cannot be negative, got %d", music.ErrInvalidInput, limit)
	}
	page, err := s.store.FindUnenriched(ctx, music.UnenrichedQuery{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to find unenriched tracks: %w", err)
	}
	return page, nil
}

// BulkInsert writes records in one atomic batch. Records for tracks or
// external ids that are already enriched are ignored, so a failed batch can
// be retried unchanged.
func (s *Service) BulkInsert(ctx context.Context, records []music.Metadata) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return 0, err
		}
	}
	inserted, err := s.store.BulkInsertMetadata(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %d metadata records: %w", len(records), err)
	}
	metrics.MetadataInsertedTotal.Add(float64(inserted))
	return inserted, nil
}

// Backfill walks the identities lacking metadata in pages of pageSize, asks
// the provider for each page and stores what it returns. The walk covers ids
// up to the highest one present when it starts; later ids are left for the
// next pass. The cursor only moves past a page once its insert committed.
func (s *Service) Backfill(ctx context.Context, pageSize int, progress func(BackfillReport)) (BackfillReport, error) {
	var report BackfillReport
	if pageSize <= 0 {
		return report, fmt.Errorf("%w: page size must be positive, got %d", music.ErrInvalidInput, pageSize)
	}
	if s.provider == nil {
		return report, fmt.Errorf("%w: no metadata provider configured", ErrUpstreamUnavailable)
	}

	until, err := s.store.MaxTrackID(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to read highest track id: %w", err)
	}
	report.Until = until
	slog.Info("Starting metadata backfill", "page_size", pageSize, "until", until)

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		page, err := s.store.FindUnenriched(ctx, music.UnenrichedQuery{After: report.Cursor, Until: until, Limit: pageSize})
		if err != nil {
			return report, fmt.Errorf("failed to load backfill page after %d: %w", report.Cursor, err)
		}
		report.Remaining = page.Total
		if len(page.Sample) == 0 {
			break
		}

		records, failed, err := s.fetchPage(ctx, page.Sample)
		if err != nil {
			return report, err
		}
		inserted, err := s.BulkInsert(ctx, records)
		if err != nil {
			return report, err
		}

		report.Pages++
		report.Visited += len(page.Sample)
		report.Inserted += inserted
		report.Failed += failed
		report.Missing += len(page.Sample) - len(records) - failed
		report.Cursor = page.Sample[len(page.Sample)-1].ID
		report.Remaining = max(page.Total-inserted, 0)
		metrics.BackfillPagesTotal.Inc()
		slog.Debug("Backfill page committed", "page", report.Pages, "cursor", report.Cursor, "inserted", inserted)
		if progress != nil {
			progress(report)
		}
		if len(page.Sample) < pageSize {
			break
		}
	}

	slog.Info("Metadata backfill finished", "pages", report.Pages, "visited", report.Visited, "inserted", report.Inserted, "missing", report.Missing, "failed", report.Failed)
	return report, nil
}

// fetchPage asks the provider for one page in concurrent chunks. Chunks the
// provider cannot serve are counted as failed and left unenriched.
func (s *Service) fetchPage(ctx context.Context, sample []music.TrackIdentity) ([]music.Metadata, int, error) {
	batchSize, workers := 50, 1
	if s.config != nil {
		cfg := s.config.Get().Provider
		batchSize, workers = max(cfg.BatchSize, 1), max(cfg.Workers, 1)
	}

	var (
		mu      sync.Mutex
		records []music.Metadata
		failed  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(sample); start += batchSize {
		chunk := sample[start:min(start+batchSize, len(sample))]
		g.Go(func() error {
			externalIDs := make([]string, len(chunk))
			for i, identity := range chunk {
				externalIDs[i] = identity.ExternalID
			}
			found, err := s.provider.FetchMetadata(gctx, externalIDs)
			if errors.Is(err, ErrUpstreamUnavailable) {
				slog.Warn("Provider could not describe tracks, leaving them unenriched", "tracks", len(chunk), "error", err)
				mu.Lock()
				failed += len(chunk)
				mu.Unlock()
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to fetch metadata: %w", err)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, identity := range chunk {
				md, ok := found[identity.ExternalID]
				if !ok {
					continue
				}
				md.TrackID = identity.ID
				md.ExternalID = identity.ExternalID
				if err := md.Validate(); err != nil {
					slog.Warn("Skipping invalid provider metadata", "track", identity.ExternalID, "error", err)
					continue
				}
				records = append(records, md)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return records, failed, nil
}
