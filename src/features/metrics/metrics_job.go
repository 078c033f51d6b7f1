package metrics

import (
	"context"
	"fmt"

	"github.com/contre95/playgraph/src/features/jobs"
)

// StatsRefreshTask implements jobs.Task for refreshing the graph size gauges.
type StatsRefreshTask struct {
	service *Service
}

// NewStatsRefreshTask creates a new stats refresh task.
func NewStatsRefreshTask(service *Service) *StatsRefreshTask {
	return &StatsRefreshTask{service: service}
}

// MetadataKeys returns the required metadata keys (none needed).
func (t *StatsRefreshTask) MetadataKeys() []string {
	return []string{}
}

// Execute counts the store contents and publishes them.
func (t *StatsRefreshTask) Execute(ctx context.Context, job *jobs.Job, progressUpdater func(int, string)) (map[string]any, error) {
	progressUpdater(10, "Counting graph records")
	stats, err := t.service.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count graph records: %w", err)
	}
	progressUpdater(100, "Graph statistics refreshed")
	return map[string]any{
		"tracks":     stats.Tracks,
		"playlists":  stats.Playlists,
		"edges":      stats.Edges,
		"enriched":   stats.Enriched,
		"unenriched": stats.Unenriched,
	}, nil
}

// Cleanup performs cleanup after job execution.
func (t *StatsRefreshTask) Cleanup(job *jobs.Job) error {
	return nil
}
