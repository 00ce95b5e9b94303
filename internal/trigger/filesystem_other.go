//go:build !darwin

// internal/trigger/filesystem_other.go
package trigger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/veilproject/veil/internal/config"
)

// Filesystem watches directories for file events using fsnotify.
type Filesystem struct {
	jobName         string
	watchPaths      []string
	onEvents        map[string]bool
	ignorePatterns  []string
	debounceSeconds int
	watcher         *fsnotify.Watcher
	mu              sync.Mutex
	pending         map[string]*time.Timer
	stopped         bool
}

var _ Trigger = (*Filesystem)(nil)

// NewFilesystem creates a new filesystem trigger
func NewFilesystem(jobName string, cfg config.Trigger) (*Filesystem, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	onEvents := make(map[string]bool)
	for _, e := range cfg.OnEvents {
		onEvents[e] = true
	}

	var watchPaths []string
	for _, p := range cfg.WatchPaths {
		watchPaths = append(watchPaths, expandHome(p))
	}

	return &Filesystem{
		jobName:         jobName,
		watchPaths:      watchPaths,
		onEvents:        onEvents,
		ignorePatterns:  cfg.IgnorePatterns,
		debounceSeconds: cfg.DebounceSeconds,
		watcher:         watcher,
		pending:         make(map[string]*time.Timer),
	}, nil
}

func (f *Filesystem) JobName() string {
	return f.jobName
}

func (f *Filesystem) Start(ctx context.Context, events chan<- Event) error {
	// Add watch paths
	for _, path := range f.watchPaths {
		if err := f.watcher.Add(path); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}
			f.handleEvent(event, events)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("filesystem watcher error", "job", f.jobName, "error", err)
		}
	}
}

func (f *Filesystem) Stop() error {
	// Cancel all pending debounce timers to prevent goroutine leaks
	f.mu.Lock()
	f.stopped = true
	for path, timer := range f.pending {
		timer.Stop()
		delete(f.pending, path)
	}
	f.mu.Unlock()

	return f.watcher.Close()
}

func (f *Filesystem) handleEvent(fsEvent fsnotify.Event, events chan<- Event) {
	// Determine event type
	var eventType string
	switch {
	case fsEvent.Op&fsnotify.Create != 0:
		// Directories are never redaction targets
		if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
			return
		}
		eventType = "file_created"
	case fsEvent.Op&fsnotify.Write != 0:
		eventType = "file_modified"
	default:
		return
	}

	// Check if we care about this event type
	if !f.onEvents[eventType] {
		return
	}

	// Check ignore patterns
	filename := filepath.Base(fsEvent.Name)
	for _, pattern := range f.ignorePatterns {
		if matched, _ := filepath.Match(pattern, filename); matched {
			return
		}
	}

	// Debounce if configured
	if f.debounceSeconds > 0 {
		f.debounce(fsEvent.Name, eventType, events)
		return
	}

	f.sendEvent(fsEvent.Name, eventType, events)
}

func (f *Filesystem) debounce(path, eventType string, events chan<- Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return
	}

	// Cancel existing timer for this path
	if timer, exists := f.pending[path]; exists {
		timer.Stop()
	}

	// Create new timer
	f.pending[path] = time.AfterFunc(time.Duration(f.debounceSeconds)*time.Second, func() {
		f.mu.Lock()
		stopped := f.stopped
		delete(f.pending, path)
		f.mu.Unlock()
		if !stopped {
			f.sendEvent(path, eventType, events)
		}
	})
}

func (f *Filesystem) sendEvent(path, eventType string, events chan<- Event) {
	select {
	case events <- Event{
		JobName:   f.jobName,
		Type:      eventType,
		Path:      path,
		Timestamp: time.Now(),
		Data: map[string]any{
			"file_name": filepath.Base(path),
		},
	}:
	default:
		// channel full, drop event
	}
}
