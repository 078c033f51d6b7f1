package jobs

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/contre95/playgraph/src/features/config"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTask struct {
	keys    []string
	run     func(ctx context.Context, job *Job, progress func(int, string)) (map[string]any, error)
	cleaned chan string
}

func (f *fakeTask) MetadataKeys() []string { return f.keys }

func (f *fakeTask) Execute(ctx context.Context, job *Job, progress func(int, string)) (map[string]any, error) {
	return f.run(ctx, job, progress)
}

func (f *fakeTask) Cleanup(job *Job) error {
	if f.cleaned != nil {
		f.cleaned <- job.ID
	}
	return nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(&config.Jobs{Log: true, LogPath: t.TempDir()})
}

func waitFor(t *testing.T, s *Service, id string, status JobStatus) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var ok bool
		job, ok = s.GetJob(id)
		return ok && job.Status == status
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func TestStartJobCompletesAndMergesStats(t *testing.T) {
	s := newTestService(t)
	var finished []Job
	var mu sync.Mutex
	s.OnFinish(func(job Job) {
		mu.Lock()
		defer mu.Unlock()
		finished = append(finished, job)
	})

	s.RegisterHandler("ingest", NewBaseTaskHandler(&fakeTask{
		keys: []string{"playlist_id"},
		run: func(ctx context.Context, job *Job, progress func(int, string)) (map[string]any, error) {
			progress(50, "halfway")
			return map[string]any{"pairs": 3}, nil
		},
	}))

	id, err := s.StartJob("ingest", "Ingest pl1", map[string]any{"playlist_id": "pl1"})
	require.NoError(t, err)

	job := waitFor(t, s, id, JobStatusCompleted)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 3, job.Metadata["pairs"])
	assert.Equal(t, "pl1", job.Metadata["playlist_id"])
	assert.FileExists(t, job.LogPath)

	s.Wait()
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, finished, 1)
	assert.Equal(t, JobStatusCompleted, finished[0].Status)
}

func TestStartJobUnknownType(t *testing.T) {
	s := newTestService(t)
	_, err := s.StartJob("nope", "nope", nil)
	assert.Error(t, err)
}

func TestJobFailsOnMissingMetadata(t *testing.T) {
	s := newTestService(t)
	s.RegisterHandler("ingest", NewBaseTaskHandler(&fakeTask{
		keys: []string{"playlist_id"},
		run: func(ctx context.Context, job *Job, progress func(int, string)) (map[string]any, error) {
			return nil, nil
		},
	}))

	id, err := s.StartJob("ingest", "no metadata", nil)
	require.NoError(t, err)
	job := waitFor(t, s, id, JobStatusFailed)
	assert.Contains(t, job.Error, "playlist_id")
}

func TestJobFailureKeepsPartialStats(t *testing.T) {
	s := newTestService(t)
	s.RegisterHandler("backfill", NewBaseTaskHandler(&fakeTask{
		run: func(ctx context.Context, job *Job, progress func(int, string)) (map[string]any, error) {
			return map[string]any{"pages": 2}, errors.New("store down")
		},
	}))

	id, err := s.StartJob("backfill", "Backfill", nil)
	require.NoError(t, err)
	job := waitFor(t, s, id, JobStatusFailed)
	assert.Equal(t, "store down", job.Error)
	assert.Equal(t, 2, job.Metadata["pages"])
}

func TestOneRunningJobPerType(t *testing.T) {
	s := newTestService(t)
	release := make(chan struct{})
	s.RegisterHandler("backfill", NewBaseTaskHandler(&fakeTask{
		run: func(ctx context.Context, job *Job, progress func(int, string)) (map[string]any, error) {
			<-release
			return nil, nil
		},
	}))

	first, err := s.StartJob("backfill", "first", nil)
	require.NoError(t, err)
	second, err := s.StartJob("backfill", "second", nil)
	require.NoError(t, err)

	job, _ := s.GetJob(second)
	assert.Equal(t, JobStatusPending, job.Status)

	close(release)
	waitFor(t, s, first, JobStatusCompleted)
	waitFor(t, s, second, JobStatusCompleted)
}

func TestCancelRunningJob(t *testing.T) {
	s := newTestService(t)
	started := make(chan struct{})
	s.RegisterHandler("backfill", NewBaseTaskHandler(&fakeTask{
		run: func(ctx context.Context, job *Job, progress func(int, string)) (map[string]any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	id, err := s.StartJob("backfill", "long", nil)
	require.NoError(t, err)
	<-started
	require.NoError(t, s.CancelJob(id))
	waitFor(t, s, id, JobStatusCancelled)

	assert.Error(t, s.CancelJob(id))
	assert.ErrorIs(t, s.CancelJob("missing"), ErrJobNotFound)
}

func TestCleanupOldJobs(t *testing.T) {
	s := newTestService(t)
	s.RegisterHandler("noop", NewBaseTaskHandler(&fakeTask{
		run: func(ctx context.Context, job *Job, progress func(int, string)) (map[string]any, error) {
			return nil, nil
		},
	}))
	id, err := s.StartJob("noop", "noop", nil)
	require.NoError(t, err)
	waitFor(t, s, id, JobStatusCompleted)
	s.Wait()

	assert.Equal(t, 0, s.CleanupOldJobs(time.Hour))
	assert.Equal(t, 1, s.CleanupOldJobs(0))
	_, ok := s.GetJob(id)
	assert.False(t, ok)
}

func TestCancelPendingJobIsSkipped(t *testing.T) {
	s := newTestService(t)
	release := make(chan struct{})
	var ran []string
	var mu sync.Mutex
	s.RegisterHandler("ingest", NewBaseTaskHandler(&fakeTask{
		run: func(ctx context.Context, job *Job, progress func(int, string)) (map[string]any, error) {
			mu.Lock()
			ran = append(ran, job.Name)
			mu.Unlock()
			if job.Name == "first" {
				<-release
			}
			return nil, nil
		},
	}))

	first, err := s.StartJob("ingest", "first", nil)
	require.NoError(t, err)
	second, err := s.StartJob("ingest", "second", nil)
	require.NoError(t, err)
	third, err := s.StartJob("ingest", "third", nil)
	require.NoError(t, err)

	require.NoError(t, s.CancelJob(second))
	job, _ := s.GetJob(second)
	assert.Equal(t, JobStatusCancelled, job.Status)

	close(release)
	waitFor(t, s, first, JobStatusCompleted)
	waitFor(t, s, third, JobStatusCompleted)
	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "third"}, ran)
}

func TestJobRoutes(t *testing.T) {
	s := newTestService(t)
	s.RegisterHandler("noop", NewBaseTaskHandler(&fakeTask{
		run: func(ctx context.Context, job *Job, progress func(int, string)) (map[string]any, error) {
			return nil, nil
		},
	}))
	id, err := s.StartJob("noop", "noop", nil)
	require.NoError(t, err)
	waitFor(t, s, id, JobStatusCompleted)
	s.Wait()

	app := fiber.New()
	RegisterRoutes(app, s)

	list := func(target string) []map[string]any {
		resp, err := app.Test(httptest.NewRequest("GET", target, nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		var out []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}
	assert.Len(t, list("/jobs?type=noop&status=completed"), 1)
	assert.Empty(t, list("/jobs?type=backfill"))

	resp, err := app.Test(httptest.NewRequest("GET", "/jobs/"+id, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/jobs/"+id+"/cancel", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/jobs/cleanup?older_than=soon", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/jobs/cleanup?older_than=0s", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, list("/jobs"))
}

func TestShutdownCancelsQueuedAndRunningJobs(t *testing.T) {
	s := newTestService(t)
	started := make(chan struct{})
	var ran []string
	var mu sync.Mutex
	s.RegisterHandler("backfill", NewBaseTaskHandler(&fakeTask{
		run: func(ctx context.Context, job *Job, progress func(int, string)) (map[string]any, error) {
			mu.Lock()
			ran = append(ran, job.Name)
			mu.Unlock()
			if job.Name == "page-1" {
				close(started)
			}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	ids := make([]string, 0, 4)
	for _, name := range []string{"page-1", "page-2", "page-3", "page-4"} {
		id, err := s.StartJob("backfill", name, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	<-started

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return")
	}

	for _, id := range ids {
		job, ok := s.GetJob(id)
		require.True(t, ok)
		assert.Equal(t, JobStatusCancelled, job.Status, job.Name)
	}
	mu.Lock()
	assert.Equal(t, []string{"page-1"}, ran)
	mu.Unlock()

	_, err := s.StartJob("backfill", "late", nil)
	assert.ErrorIs(t, err, ErrShuttingDown)
}
