package keystore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the quiet period after the last file event
// before managers are invalidated.
const DefaultDebounceInterval = 100 * time.Millisecond

// Watcher invalidates managers when their store files change on disk.
//
// The parent directory of every file is watched rather than the file itself,
// so atomic replacements (write to temp file, rename) and Kubernetes secret
// updates (symlink swap) are observed too.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	interval time.Duration

	mu        sync.Mutex
	targets   map[string][]*Manager
	dirs      map[string]struct{}
	debounces map[string]*Debouncer
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewWatcher creates a store file watcher. A non-positive interval selects
// DefaultDebounceInterval.
func NewWatcher(interval time.Duration, logger *slog.Logger) (*Watcher, error) {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	if logger == nil {
		logger = slog.Default().With("component", "keystore_watcher")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher:   w,
		logger:    logger,
		interval:  interval,
		targets:   make(map[string][]*Manager),
		dirs:      make(map[string]struct{}),
		debounces: make(map[string]*Debouncer),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Add registers a manager to be invalidated when path changes.
func (w *Watcher) Add(path string, m *Manager) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.dirs[dir]; !ok {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %q: %w", dir, err)
		}
		w.dirs[dir] = struct{}{}
	}

	w.targets[abs] = append(w.targets[abs], m)
	if _, ok := w.debounces[abs]; !ok {
		w.debounces[abs] = NewDebouncer(w.interval)
	}

	w.logger.Debug("watching store file", "path", abs, "store", m.Name())
	return nil
}

// Watch processes file events until the context is cancelled or Stop is
// called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	w.logger.Info("store file watcher started",
		"debounce_ms", w.interval.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.stopCh:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("store file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	w.mu.Lock()
	var matched []string
	if _, ok := w.targets[filepath.Clean(event.Name)]; ok {
		matched = append(matched, filepath.Clean(event.Name))
	} else {
		// Kubernetes swaps a hidden ..data symlink; treat any event in the
		// directory that does not name another file as a change to all of
		// its targets.
		dir := filepath.Dir(filepath.Clean(event.Name))
		base := filepath.Base(event.Name)
		if strings.HasPrefix(base, "..") {
			for path := range w.targets {
				if filepath.Dir(path) == dir {
					matched = append(matched, path)
				}
			}
		}
	}
	w.mu.Unlock()

	for _, path := range matched {
		w.trigger(path, event.Op)
	}
}

func (w *Watcher) trigger(path string, op fsnotify.Op) {
	w.mu.Lock()
	d := w.debounces[path]
	managers := append([]*Manager(nil), w.targets[path]...)
	w.mu.Unlock()

	d.Trigger(func() {
		for _, m := range managers {
			w.logger.Info("store file changed, invalidating",
				"path", path,
				"op", op.String(),
				"store", m.Name(),
			)
			m.Invalidate()
		}
	})
}

// Stop stops the watcher and cancels pending invalidations.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}

	w.mu.Lock()
	for _, d := range w.debounces {
		d.Stop()
	}
	w.mu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Debouncer collapses bursts of events into one callback fired after a quiet
// period.
type Debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any callback still pending.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	cb := d.callback
	d.callback = nil
	stopped := d.stopped
	d.mu.Unlock()

	if cb != nil && !stopped {
		cb()
	}
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
