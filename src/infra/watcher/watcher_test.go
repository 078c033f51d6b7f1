package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherEmitsDebouncedEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	events := make(chan FileEvent, 4)
	w, err := NewWatcher(events)
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx, path))
	defer w.Stop()

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))
	for i := range 3 {
		require.NoError(t, os.WriteFile(path, []byte{byte('0' + i)}, 0o644))
	}

	select {
	case event := <-events:
		abs, _ := filepath.Abs(path)
		assert.Equal(t, abs, event.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a file event")
	}

	select {
	case event := <-events:
		t.Fatalf("writes should be debounced into one event, got extra %+v", event)
	case <-time.After(200 * time.Millisecond):
	}
}

type countingReloader struct {
	calls atomic.Int32
}

func (c *countingReloader) Reload() error {
	c.calls.Add(1)
	return nil
}

func TestReloadOnSkipsRemovals(t *testing.T) {
	events := make(chan FileEvent, 3)
	events <- FileEvent{EventType: FileModified}
	events <- FileEvent{EventType: FileRemoved}
	events <- FileEvent{EventType: FileCreated}
	close(events)

	r := &countingReloader{}
	ReloadOn(context.Background(), events, r)
	assert.Equal(t, int32(2), r.calls.Load())
}
