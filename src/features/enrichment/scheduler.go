package enrichment

import (
	"log/slog"
	"sync"
	"time"

	"github.com/contre95/playgraph/src/music"
)

// JobType is the job type backfills are registered under.
const JobType = "metadata_backfill"

// Scheduler starts a backfill job at a fixed interval. The job runner keeps
// at most one backfill running, so a slow pass simply queues the next one.
type Scheduler struct {
	jobs     music.JobService
	interval time.Duration
	stopChan chan struct{}
	once     sync.Once
}

// NewScheduler creates a new backfill scheduler.
func NewScheduler(jobService music.JobService, interval time.Duration) *Scheduler {
	return &Scheduler{jobs: jobService, interval: interval, stopChan: make(chan struct{})}
}

// Start begins scheduling backfills.
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		slog.Warn("Backfill schedule disabled, interval must be positive", "interval", s.interval)
		return
	}
	go s.run()
}

// Stop halts scheduling. Running jobs are not affected.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopChan) })
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	slog.Info("Backfill schedule started", "interval", s.interval)
	for {
		select {
		case <-ticker.C:
			jobID, err := s.jobs.StartJob(JobType, "Scheduled metadata backfill", map[string]any{"trigger": "schedule"})
			if err != nil {
				slog.Error("Failed to start scheduled backfill", "error", err)
				continue
			}
			slog.Debug("Scheduled backfill queued", "jobID", jobID)
		case <-s.stopChan:
			return
		}
	}
}
