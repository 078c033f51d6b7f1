package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/contre95/playgraph/src/features/config"
	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

type Job struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Name       string             `json:"name"`
	Status     JobStatus          `json:"status"`
	Progress   int                `json:"progress"`
	Message    string             `json:"message"`
	Error      string             `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	Metadata   map[string]any     `json:"metadata,omitempty"`
	LogPath    string             `json:"log_path,omitempty"`
	Logger     *slog.Logger       `json:"-"`
	cancelFunc context.CancelFunc
	cancelled  bool
	logFile    io.Closer
}

type JobProgress struct {
	JobID    string
	Progress int
	Message  string
}

type TaskHandler interface {
	Execute(ctx context.Context, job *Job, progressChan chan<- JobProgress) (map[string]any, error)
	Cancel(jobID string) error
}

// Task defines the specific logic for a job type.
type Task interface {
	MetadataKeys() []string
	Execute(ctx context.Context, job *Job, progressUpdater func(int, string)) (map[string]any, error)
	Cleanup(job *Job) error
}

// BaseTaskHandler provides a base implementation for TaskHandler.
type BaseTaskHandler struct {
	Task Task
}

// NewBaseTaskHandler creates a new BaseTaskHandler.
func NewBaseTaskHandler(task Task) *BaseTaskHandler {
	return &BaseTaskHandler{Task: task}
}

// Execute runs the job using the provided task.
func (h *BaseTaskHandler) Execute(ctx context.Context, job *Job, progressChan chan<- JobProgress) (map[string]any, error) {
	job.Logger.Info("Starting job", "name", job.Name)

	for _, key := range h.Task.MetadataKeys() {
		if _, ok := job.Metadata[key]; !ok {
			err := fmt.Errorf("missing %s in job metadata", key)
			job.Logger.Error("Error: " + err.Error())
			return nil, err
		}
	}

	progressUpdater := func(percentage int, status string) {
		progressChan <- JobProgress{
			JobID:    job.ID,
			Progress: percentage,
			Message:  status,
		}
		job.Logger.Info("Progress", "percentage", percentage, "status", status)
	}

	defer func() {
		if err := h.Task.Cleanup(job); err != nil {
			job.Logger.Error("Error during job cleanup", "error", err)
		}
	}()

	stats, err := h.Task.Execute(ctx, job, progressUpdater)
	if err != nil {
		job.Logger.Error("Error during job execution", "error", err)
		return stats, err
	}

	job.Logger.Info("Job finished successfully", "name", job.Name)
	return stats, nil
}

// Cancel stops a running job. Cancellation itself goes through the job's
// context; this hook is for handler specific cleanup.
func (h *BaseTaskHandler) Cancel(jobID string) error {
	return nil
}

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrUnknownJobType = errors.New("unknown job type")
	ErrShuttingDown   = errors.New("job service is shutting down")
)

// Service runs jobs in the background. Jobs of one type run one at a time in
// the order they were started; jobs of different types run concurrently.
type Service struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	handlers map[string]TaskHandler
	running  map[string]*Job   // by type
	pending  map[string][]*Job // by type, oldest first
	config   *config.Jobs
	onFinish func(job Job)
	wg       sync.WaitGroup
	closed   bool
}

func NewService(cfg *config.Jobs) *Service {
	return &Service{
		jobs:     make(map[string]*Job),
		handlers: make(map[string]TaskHandler),
		running:  make(map[string]*Job),
		pending:  make(map[string][]*Job),
		config:   cfg,
	}
}

// OnFinish registers a callback invoked with a snapshot of every job that
// reaches a terminal status.
func (s *Service) OnFinish(fn func(job Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinish = fn
}

func (s *Service) RegisterHandler(jobType string, handler TaskHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[jobType] = handler
}

// StartJob queues a job and returns its id. It runs right away unless a job
// of the same type is running.
func (s *Service) StartJob(jobType string, name string, metadata map[string]any) (string, error) {
	s.mu.RLock()
	_, known := s.handlers[jobType]
	s.mu.RUnlock()
	if !known {
		return "", fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}

	now := time.Now()
	job := &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Name:      name,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}
	if err := s.openJobLog(job); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if job.logFile != nil {
			job.logFile.Close()
		}
		return "", ErrShuttingDown
	}
	s.jobs[job.ID] = job
	if s.running[jobType] == nil {
		s.launch(job)
	} else {
		s.pending[jobType] = append(s.pending[jobType], job)
	}
	s.mu.Unlock()

	slog.Debug("Job queued", "id", job.ID, "type", jobType, "name", name)
	return job.ID, nil
}

// openJobLog points the job logger at its own file when job logging is on.
func (s *Service) openJobLog(job *Job) error {
	if !s.config.Log {
		job.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		return nil
	}
	if err := os.MkdirAll(s.config.LogPath, 0755); err != nil {
		return fmt.Errorf("failed to create job log directory: %w", err)
	}
	logPath := filepath.Join(s.config.LogPath, fmt.Sprintf("%s-%s-%s.log", job.CreatedAt.Format("2006-01-02"), job.Type, job.ID))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open job log: %w", err)
	}
	job.Logger = slog.New(slog.NewTextHandler(logFile, nil)).With("job_id", job.ID, "type", job.Type)
	job.LogPath = logPath
	job.logFile = logFile
	return nil
}

// launch marks job as the running job of its type. Callers hold s.mu.
func (s *Service) launch(job *Job) {
	job.Status = JobStatusRunning
	job.UpdatedAt = time.Now()
	s.running[job.Type] = job
	s.wg.Add(1)
	go s.executeJob(job)
}

// next hands the type's slot to the oldest pending job, if any.
func (s *Service) next(jobType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, jobType)
	queue := s.pending[jobType]
	for len(queue) > 0 {
		job := queue[0]
		queue = queue[1:]
		if job.Status == JobStatusPending {
			s.launch(job)
			break
		}
	}
	if len(queue) == 0 {
		delete(s.pending, jobType)
	} else {
		s.pending[jobType] = queue
	}
}

func (s *Service) executeJob(job *Job) {
	defer s.wg.Done()
	defer s.next(job.Type)

	s.mu.Lock()
	handler := s.handlers[job.Type]
	ctx, cancel := context.WithCancel(context.Background())
	job.cancelFunc = cancel
	if job.cancelled {
		cancel()
	}
	s.mu.Unlock()
	defer cancel()

	s.UpdateJobProgress(job.ID, 0, "Starting...")
	progressChan := make(chan JobProgress, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for progress := range progressChan {
			s.UpdateJobProgress(progress.JobID, progress.Progress, progress.Message)
		}
	}()
	stats, err := handler.Execute(ctx, job, progressChan)
	close(progressChan)
	<-done

	s.mu.Lock()
	cancelled := job.cancelled
	// Stats are kept even when the task fails part way.
	if stats != nil {
		job.mergeMetadata(stats)
	}
	s.mu.Unlock()

	switch {
	case cancelled || errors.Is(err, context.Canceled):
		s.finish(job, JobStatusCancelled, "Job cancelled", "")
	case err != nil:
		s.finish(job, JobStatusFailed, "Job failed", err.Error())
	default:
		s.finish(job, JobStatusCompleted, "Job completed successfully", "")
	}
}

func (s *Service) finish(job *Job, status JobStatus, message, errMsg string) {
	s.mu.Lock()
	job.Status = status
	job.Message = message
	job.Error = errMsg
	job.UpdatedAt = time.Now()
	if status == JobStatusCompleted {
		job.Progress = 100
	}
	if job.logFile != nil {
		job.logFile.Close()
		job.logFile = nil
	}
	snapshot := job.snapshot()
	onFinish := s.onFinish
	s.mu.Unlock()

	slog.Info("Job finished", "id", job.ID, "type", job.Type, "status", status, "error", errMsg)
	if onFinish != nil {
		onFinish(snapshot)
	}
}

func (s *Service) UpdateJobProgress(jobID string, progress int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, exists := s.jobs[jobID]
	if !exists || job.Status.Terminal() {
		return
	}
	job.Progress = progress
	job.Message = message
	job.UpdatedAt = time.Now()
}

// CancelJob cancels a pending or running job. A pending job is finalized
// right away; a running one stops when its task returns.
func (s *Service) CancelJob(jobID string) error {
	s.mu.Lock()
	job, exists := s.jobs[jobID]
	if !exists {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("job %s already %s", jobID, job.Status)
	}
	job.cancelled = true
	job.Message = "Cancelling"
	job.UpdatedAt = time.Now()

	if job.Status == JobStatusPending {
		// next skips it when the slot frees up.
		s.mu.Unlock()
		s.finish(job, JobStatusCancelled, "Job cancelled", "")
		return nil
	}
	if job.cancelFunc != nil {
		job.cancelFunc()
	}
	handler := s.handlers[job.Type]
	s.mu.Unlock()
	return handler.Cancel(jobID)
}

// GetJob returns a snapshot of the job.
func (s *Service) GetJob(jobID string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, exists := s.jobs[jobID]
	if !exists {
		return nil, false
	}
	snapshot := job.snapshot()
	return &snapshot, true
}

// GetJobs returns snapshots of every job, newest first.
func (s *Service) GetJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot := job.snapshot()
		jobs = append(jobs, &snapshot)
	}
	slices.SortFunc(jobs, func(a, b *Job) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return jobs
}

// Wait blocks until every started job has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting jobs, cancels the pending ones and the running
// ones, and waits for the running tasks to return.
func (s *Service) Shutdown() {
	s.mu.Lock()
	s.closed = true
	var dropped []*Job
	for jobType, queue := range s.pending {
		for _, job := range queue {
			if job.Status == JobStatusPending {
				job.cancelled = true
				dropped = append(dropped, job)
			}
		}
		delete(s.pending, jobType)
	}
	for _, job := range s.running {
		job.cancelled = true
		if job.cancelFunc != nil {
			job.cancelFunc()
		}
	}
	s.mu.Unlock()

	for _, job := range dropped {
		s.finish(job, JobStatusCancelled, "Job cancelled on shutdown", "")
	}
	if len(dropped) > 0 {
		slog.Info("Cancelled pending jobs on shutdown", "count", len(dropped))
	}
	s.wg.Wait()
}

// CleanupOldJobs forgets finished jobs older than maxAge and removes their logs.
func (s *Service) CleanupOldJobs(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, job := range s.jobs {
		if !job.Status.Terminal() || job.UpdatedAt.After(cutoff) {
			continue
		}
		if job.LogPath != "" {
			if err := os.Remove(job.LogPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("Failed to remove job log", "path", job.LogPath, "error", err)
			}
		}
		delete(s.jobs, id)
		removed++
	}
	return removed
}

func (j *Job) snapshot() Job {
	cp := *j
	cp.Metadata = maps.Clone(j.Metadata)
	cp.cancelFunc = nil
	cp.logFile = nil
	return cp
}

func (j *Job) mergeMetadata(stats map[string]any) {
	if j.Metadata == nil {
		j.Metadata = make(map[string]any, len(stats))
	}
	maps.Copy(j.Metadata, stats)
}
