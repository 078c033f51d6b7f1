package enrichment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/contre95/playgraph/src/features/jobs"
)

// BackfillTask implements jobs.Task for the metadata backfill.
type BackfillTask struct {
	service  *Service
	pageSize func() int
}

// NewBackfillTask creates a new backfill task. defaultPageSize is read on
// every run so config reloads apply to the next job.
func NewBackfillTask(service *Service, defaultPageSize func() int) *BackfillTask {
	return &BackfillTask{service: service, pageSize: defaultPageSize}
}

// MetadataKeys returns the required metadata keys (page_size is optional).
func (t *BackfillTask) MetadataKeys() []string {
	return []string{}
}

// Execute runs one backfill pass and reports progress as pages commit.
func (t *BackfillTask) Execute(ctx context.Context, job *jobs.Job, progressUpdater func(int, string)) (map[string]any, error) {
	pageSize := t.pageSize()
	if v, ok := metadataInt(job.Metadata, "page_size"); ok && v > 0 {
		pageSize = v
	}

	progressUpdater(5, fmt.Sprintf("Scanning unenriched tracks in pages of %d", pageSize))
	report, err := t.service.Backfill(ctx, pageSize, func(r BackfillReport) {
		percent := 95
		if r.Until > 0 {
			percent = 5 + int(float64(r.Cursor)/float64(r.Until)*90)
		}
		progressUpdater(min(percent, 95), fmt.Sprintf("Page %d committed, %d inserted so far", r.Pages, r.Inserted))
	})
	stats := map[string]any{
		"pages":     report.Pages,
		"visited":   report.Visited,
		"inserted":  report.Inserted,
		"missing":   report.Missing,
		"failed":    report.Failed,
		"cursor":    report.Cursor,
		"remaining": report.Remaining,
	}
	if err != nil {
		return stats, err
	}
	progressUpdater(100, fmt.Sprintf("Backfill finished: %d inserted, %d still unenriched", report.Inserted, report.Remaining))
	return stats, nil
}

// Cleanup performs cleanup after job execution.
func (t *BackfillTask) Cleanup(job *jobs.Job) error {
	slog.Debug("Backfill job cleaned up", "jobID", job.ID)
	return nil
}

func metadataInt(metadata map[string]any, key string) (int, bool) {
	switch v := metadata[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
