package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures a rules file Watcher.
type WatcherConfig struct {
	// Path is the rules file to watch.
	Path string

	// DebounceInterval is the quiet period after the last change before the
	// reload callback runs.
	// Default: 250ms
	DebounceInterval time.Duration
}

// Watcher reloads a rules file when it changes. The parent directory is
// watched rather than the file itself because editors and config management
// tools usually replace files by rename, which drops a per-file watch.
type Watcher struct {
	watcher  *fsnotify.Watcher
	config   WatcherConfig
	logger   *slog.Logger
	debounce *debouncer

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a Watcher for cfg.Path.
func NewWatcher(cfg *WatcherConfig, logger *slog.Logger) (*Watcher, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, errors.New("rules watcher: path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := *cfg
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = 250 * time.Millisecond
	}
	abs, err := filepath.Abs(c.Path)
	if err != nil {
		return nil, fmt.Errorf("rules watcher: %w", err)
	}
	c.Path = abs

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher:  fw,
		config:   c,
		logger:   logger.With("component", "policy.watcher"),
		debounce: newDebouncer(c.DebounceInterval),
	}, nil
}

// Watch blocks until ctx is cancelled, calling onChange after each burst of
// writes to the rules file. A failing onChange is logged and watching
// continues; the previously applied rules stay in effect.
func (w *Watcher) Watch(ctx context.Context, onChange func() error) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("rules watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.debounce.stop()
		w.watcher.Close()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	dir := filepath.Dir(w.config.Path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.logger.Info("rules watcher started",
		"path", w.config.Path,
		"debounce_ms", w.config.DebounceInterval.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("rules watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}

			w.logger.Debug("rules file event", "path", event.Name, "op", event.Op.String())
			w.debounce.trigger(func() {
				if err := onChange(); err != nil {
					w.logger.Error("rules reload failed", "error", err)
					return
				}
				w.logger.Info("rules reloaded", "path", w.config.Path)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("rules watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		// The replacement shows up as a Create.
		return false
	}
	return filepath.Clean(event.Name) == w.config.Path
}

// debouncer runs the most recent callback once events stop arriving for
// interval.
type debouncer struct {
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			callback()
		}
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
