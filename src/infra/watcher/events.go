package watcher

import (
	"context"
	"log/slog"
	"time"
)

// FileEventType represents the type of file system event
type FileEventType string

const (
	FileCreated  FileEventType = "created"
	FileRemoved  FileEventType = "removed"
	FileModified FileEventType = "modified"
)

// FileEvent represents a file system event
type FileEvent struct {
	Path      string
	EventType FileEventType
	Timestamp time.Time
}

// Reloader is anything that can re-read its state from disk.
type Reloader interface {
	Reload() error
}

// ReloadOn calls r.Reload for every event that leaves the file in place,
// until events is closed or ctx is done.
func ReloadOn(ctx context.Context, events <-chan FileEvent, r Reloader) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.EventType == FileRemoved {
				slog.Warn("Watched file removed, keeping current state", "path", event.Path)
				continue
			}
			if err := r.Reload(); err != nil {
				slog.Error("Reload failed", "path", event.Path, "error", err)
			}
		}
	}
}
