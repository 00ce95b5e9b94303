//go:build darwin

// internal/trigger/filesystem_darwin.go
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsevents"

	"github.com/veilproject/veil/internal/config"
)

// pendingEvent tracks a debounced event, preserving the first event type
// seen during the debounce window so that file_created isn't silently
// replaced by a subsequent file_modified.
type pendingEvent struct {
	timer     *time.Timer
	eventType string
}

// Filesystem watches directories for file events using macOS FSEvents.
// FSEvents watches path strings (not file descriptors), so it handles
// volume mount/unmount and non-existent paths natively.
type Filesystem struct {
	jobName           string
	watchPaths        []string
	watchPathPrefixes []string // precomputed wp + "/" for recursive prefix matching
	cleanedWatchPaths []string // precomputed filepath.Clean(wp) for non-recursive matching
	recursive         bool
	onEvents          map[string]bool
	ignorePatterns    []string
	debounceDuration  time.Duration
	stream            *fsevents.EventStream
	done              chan struct{}
	mu                sync.Mutex
	pending           map[string]*pendingEvent
	stopped           bool
	running           bool
}

var _ Trigger = (*Filesystem)(nil)

// NewFilesystem creates a new filesystem trigger using macOS FSEvents.
func NewFilesystem(jobName string, cfg config.Trigger) (*Filesystem, error) {
	onEvents := make(map[string]bool)
	for _, e := range cfg.OnEvents {
		onEvents[e] = true
	}

	var watchPaths, prefixes, cleaned []string
	for _, p := range cfg.WatchPaths {
		expanded := expandHome(p)
		if resolved, err := filepath.EvalSymlinks(expanded); err == nil {
			expanded = resolved
		}
		watchPaths = append(watchPaths, expanded)
		prefixes = append(prefixes, expanded+"/")
		cleaned = append(cleaned, filepath.Clean(expanded))
	}

	return &Filesystem{
		jobName:           jobName,
		watchPaths:        watchPaths,
		watchPathPrefixes: prefixes,
		cleanedWatchPaths: cleaned,
		recursive:         cfg.Recursive,
		onEvents:          onEvents,
		ignorePatterns:    cfg.IgnorePatterns,
		debounceDuration:  time.Duration(cfg.DebounceSeconds) * time.Second,
		pending:           make(map[string]*pendingEvent),
	}, nil
}

func (f *Filesystem) JobName() string {
	return f.jobName
}

func (f *Filesystem) Start(ctx context.Context, events chan<- Event) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("filesystem trigger %q already running", f.jobName)
	}
	f.running = true
	f.stopped = false
	f.done = make(chan struct{})

	stream := &fsevents.EventStream{
		Paths:   f.watchPaths,
		Latency: 0,
		Flags:   fsevents.FileEvents | fsevents.WatchRoot | fsevents.NoDefer,
	}
	f.stream = stream
	f.mu.Unlock()

	stream.Start()
	slog.Info("fsevents stream started", "job", f.jobName, "paths", f.watchPaths)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case batch := <-stream.Events:
			for _, ev := range batch {
				f.handleFSEvent(ev, events)
			}
		}
	}
}

func (f *Filesystem) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopped = true
	f.running = false

	if f.stream != nil {
		f.stream.Stop()
		f.stream = nil
	}

	if f.done != nil {
		select {
		case <-f.done:
		default:
			close(f.done)
		}
	}

	for path, pe := range f.pending {
		pe.timer.Stop()
		delete(f.pending, path)
	}

	return nil
}

// isWatchedPath filters events by depth. FSEvents always watches recursively,
// so when recursive=false (default), only direct children of watched paths pass.
func (f *Filesystem) isWatchedPath(eventPath string) bool {
	if f.recursive {
		for i, wp := range f.watchPaths {
			if strings.HasPrefix(eventPath, f.watchPathPrefixes[i]) || eventPath == wp {
				return true
			}
		}
		return false
	}
	cleanedParent := filepath.Clean(filepath.Dir(eventPath))
	for _, cwp := range f.cleanedWatchPaths {
		if cleanedParent == cwp {
			return true
		}
	}
	return false
}

func (f *Filesystem) handleFSEvent(ev fsevents.Event, events chan<- Event) {
	// Warn on queue overflow — these flags mean the kernel or userspace
	// dropped events and a full rescan would be needed to catch what was
	// missed.
	if ev.Flags&fsevents.MustScanSubDirs != 0 ||
		ev.Flags&fsevents.KernelDropped != 0 ||
		ev.Flags&fsevents.UserDropped != 0 {
		slog.Warn("fsevents queue overflow, events may have been lost",
			"job", f.jobName, "path", ev.Path, "flags", ev.Flags)
		return
	}
	if ev.Flags&fsevents.Mount != 0 || ev.Flags&fsevents.Unmount != 0 ||
		ev.Flags&fsevents.RootChanged != 0 {
		return
	}

	eventPath := ev.Path

	// Map flags to event type first (O(1) bitmask checks), then filter by
	// onEvents before doing O(n) path matching.
	var eventType string
	switch {
	case ev.Flags&fsevents.ItemIsDir != 0:
		// Directories are never redaction targets
		return
	case ev.Flags&fsevents.ItemRemoved != 0:
		return
	case ev.Flags&fsevents.ItemCreated != 0:
		// Includes rename destinations (typically ItemCreated | ItemRenamed).
		eventType = "file_created"
	case ev.Flags&fsevents.ItemModified != 0:
		eventType = "file_modified"
	default:
		// Bare ItemRenamed without ItemCreated is the source side of a
		// rename — the path no longer exists at this location. Skip.
		return
	}

	if !f.onEvents[eventType] {
		return
	}

	if !f.isWatchedPath(eventPath) {
		return
	}

	// Ignore patterns match against the basename only (not the full path).
	filename := filepath.Base(eventPath)
	for _, pattern := range f.ignorePatterns {
		if matched, _ := filepath.Match(pattern, filename); matched {
			return
		}
	}

	if f.debounceDuration > 0 {
		f.debounce(eventPath, eventType, events)
		return
	}
	f.sendEvent(eventPath, eventType, events)
}

func (f *Filesystem) debounce(path, eventType string, events chan<- Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return
	}

	// Keep the first event type seen during the debounce window,
	// so file_created isn't silently replaced by file_modified.
	if pe, exists := f.pending[path]; exists {
		pe.timer.Stop()
		eventType = pe.eventType
	}

	f.pending[path] = &pendingEvent{
		eventType: eventType,
		timer: time.AfterFunc(f.debounceDuration, func() {
			f.mu.Lock()
			stopped := f.stopped
			delete(f.pending, path)
			f.mu.Unlock()
			if !stopped {
				f.sendEvent(path, eventType, events)
			}
		}),
	}
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
