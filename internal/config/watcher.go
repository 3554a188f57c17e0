package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 1500 * time.Millisecond

// Watcher reloads a configuration file when it changes on disk and
// hands the fresh value to its apply callback.
//
// The parent directory is watched rather than the file itself, so the
// watch survives editors and deploy scripts that save by renaming a
// temporary file over the original. Bursts of events for one save are
// coalesced behind a debounce timer, and a load error keeps the last
// applied value in effect.
type Watcher[T any] struct {
	path     string
	loader   func(path string) (T, error)
	apply    func(T)
	debounce time.Duration
	logger   *slog.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce overrides how long the watcher waits after the last
// change event before reloading.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) { w.debounce = d }
}

// NewWatcher creates a watcher for path. loader is called fresh on
// every reload; apply receives the loaded value. Nothing happens until
// Start.
func NewWatcher[T any](path string, loader func(string) (T, error), apply func(T), logger *slog.Logger, opts ...WatcherOption[T]) *Watcher[T] {
	w := &Watcher[T]{
		path:     path,
		loader:   loader,
		apply:    apply,
		debounce: defaultDebounce,
		logger:   logger,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start resolves the path and begins watching its directory.
func (w *Watcher[T]) Start() error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}
	w.path = abs

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	w.fsw = fsw

	w.logger.Info("Config watcher started", "path", w.path, "debounce", w.debounce)
	go w.run()
	return nil
}

// Stop ends the watch. A reload already past the debounce may still
// complete.
func (w *Watcher[T]) Stop() error {
	close(w.done)

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func (w *Watcher[T]) run() {
	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.concerns(ev) {
				continue
			}
			w.logger.Debug("Config file change detected", "op", ev.Op.String())
			w.schedule()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

// concerns reports whether a directory event is a change to the
// watched file. Write covers in-place saves; Create and Rename cover
// atomic replacement.
func (w *Watcher[T]) concerns(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(ev.Name) == w.path
}

// schedule arms the debounce timer, pushing it out if already armed.
func (w *Watcher[T]) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher[T]) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	value, err := w.loader(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous values", "error", err)
		return
	}

	w.logger.Info("Config file changed, applying")
	w.apply(value)
}
