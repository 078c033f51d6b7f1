package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DEBOUNCE = 500 * time.Millisecond

// Watcher monitors a single file and emits a debounced event whenever it is
// written, created or replaced.
type Watcher struct {
	watcher       *fsnotify.Watcher
	filePath      string
	debounceTimer *time.Timer
	debounceMutex sync.Mutex
	debounce      time.Duration
	running       bool
	stopChan      chan struct{}
	eventChan     chan<- FileEvent
}

// NewWatcher creates a new file system watcher
func NewWatcher(eventChan chan<- FileEvent) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:   watcher,
		eventChan: eventChan,
		debounce:  DEBOUNCE,
		stopChan:  make(chan struct{}),
	}, nil
}

// Start begins watching filePath. The parent directory is watched because
// editors usually save by renaming a temp file over the original.
func (w *Watcher) Start(ctx context.Context, filePath string) error {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return err
	}
	w.filePath = abs
	slog.Info("Starting file watcher", "path", abs)

	if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	w.running = true
	go w.watchLoop(ctx)
	return nil
}

// Stop stops the file watcher
func (w *Watcher) Stop() {
	if !w.running {
		return
	}

	slog.Info("Stopping file watcher", "path", w.filePath)
	w.running = false
	close(w.stopChan)

	w.debounceMutex.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMutex.Unlock()

	w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)

		case <-w.stopChan:
			return

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.filePath {
		return
	}

	var eventType FileEventType
	switch {
	case event.Has(fsnotify.Write):
		eventType = FileModified
	case event.Has(fsnotify.Create), event.Has(fsnotify.Rename):
		eventType = FileCreated
	case event.Has(fsnotify.Remove):
		eventType = FileRemoved
	default:
		return
	}
	slog.Debug("Detected change to watched file", "file", event.Name, "op", event.Op.String())

	w.debounceMutex.Lock()
	defer w.debounceMutex.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, func() {
		w.emitDebounceEvent(eventType)
	})
}

func (w *Watcher) emitDebounceEvent(eventType FileEventType) {
	event := FileEvent{
		Path:      w.filePath,
		EventType: eventType,
		Timestamp: time.Now(),
	}

	select {
	case w.eventChan <- event:
		slog.Debug("Emitted file event after debounce", "path", event.Path, "type", event.EventType)
	default:
		slog.Warn("Event channel full, dropping file event", "path", event.Path)
	}
}
