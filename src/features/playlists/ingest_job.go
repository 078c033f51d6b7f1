package playlists

import (
	"context"
	"fmt"

	"github.com/contre95/playgraph/src/features/jobs"
)

// Job types registered by the playlists feature.
const (
	IngestJobType   = "playlist_ingest"
	DiscoverJobType = "playlist_discovery"
)

// IngestTask implements jobs.Task for ingesting one playlist.
type IngestTask struct {
	service *Service
}

// NewIngestTask creates a new IngestTask.
func NewIngestTask(service *Service) *IngestTask {
	return &IngestTask{service: service}
}

// MetadataKeys returns the required metadata keys for an ingest job.
func (t *IngestTask) MetadataKeys() []string {
	return []string{"playlist_id"}
}

// Execute ingests the playlist named in the job metadata.
func (t *IngestTask) Execute(ctx context.Context, job *jobs.Job, progressUpdater func(int, string)) (map[string]any, error) {
	playlistID, ok := job.Metadata["playlist_id"].(string)
	if !ok {
		return nil, fmt.Errorf("playlist_id must be a string")
	}
	progressUpdater(10, fmt.Sprintf("Ingesting playlist %s", playlistID))
	report, err := t.service.Ingest(ctx, playlistID)
	stats := map[string]any{
		"source":   report.Source,
		"tracks":   report.Tracks,
		"resolved": report.Resolved,
		"misses":   report.Misses,
		"pairs":    report.Pairs,
	}
	if err != nil {
		return stats, err
	}
	progressUpdater(100, fmt.Sprintf("Playlist %q ingested: %d pairs", report.Name, report.Pairs))
	return stats, nil
}

// Cleanup performs cleanup after job execution.
func (t *IngestTask) Cleanup(job *jobs.Job) error {
	return nil
}

// DiscoverTask implements jobs.Task for searching and ingesting playlists.
type DiscoverTask struct {
	service *Service
}

// NewDiscoverTask creates a new DiscoverTask.
func NewDiscoverTask(service *Service) *DiscoverTask {
	return &DiscoverTask{service: service}
}

// MetadataKeys returns the required metadata keys for a discovery job.
func (t *DiscoverTask) MetadataKeys() []string {
	return []string{"query"}
}

// Execute searches the provider and ingests the new playlists it finds.
func (t *DiscoverTask) Execute(ctx context.Context, job *jobs.Job, progressUpdater func(int, string)) (map[string]any, error) {
	query, ok := job.Metadata["query"].(string)
	if !ok {
		return nil, fmt.Errorf("query must be a string")
	}
	limit := 30
	if v, ok := job.Metadata["limit"].(int); ok && v > 0 {
		limit = v
	}

	progressUpdater(5, fmt.Sprintf("Searching playlists for %q", query))
	report, err := t.service.Discover(ctx, query, limit, func(done, total int) {
		progressUpdater(5+done*90/max(total, 1), fmt.Sprintf("Processed %d of %d playlists", done, total))
	})
	stats := map[string]any{
		"playlists": report.Playlists,
		"ingested":  report.Ingested,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
		"pairs":     report.Pairs,
	}
	if err != nil {
		return stats, err
	}
	progressUpdater(100, fmt.Sprintf("Discovery finished: %d new playlists", report.Ingested))
	return stats, nil
}

// Cleanup performs cleanup after job execution.
func (t *DiscoverTask) Cleanup(job *jobs.Job) error {
	return nil
}
