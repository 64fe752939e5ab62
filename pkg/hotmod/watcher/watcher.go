package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a path must stay quiet after its last
// write before the change callback fires. Editors and build tools often
// produce bursts of writes for a single save.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc is called once per settled file change, with the absolute
// path of the changed file. It runs on the watcher's timer goroutines
// and must be safe for concurrent calls on distinct paths.
type ChangeFunc func(path string)

// Watcher monitors directories for changes to module source files and
// reports them, debounced per path.
//
// The underlying file system watcher starts lazily on the first
// WatchDirectory call; a Watcher that never watched anything costs
// nothing and Stop on it is a no-op.
type Watcher struct {
	onChange ChangeFunc
	debounce time.Duration
	exts     map[string]struct{}
	logger   *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	dirs    map[string]struct{}
	timers  map[string]*time.Timer
	done    chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger for watch registration and event errors.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// WithDebounce overrides the per-path quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExtensions replaces the set of file extensions that trigger the
// callback. Extensions include the leading dot.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.exts = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			w.exts[ext] = struct{}{}
		}
	}
}

// New creates a watcher that reports settled changes through onChange.
func New(onChange ChangeFunc, opts ...Option) *Watcher {
	w := &Watcher{
		onChange: onChange,
		debounce: DefaultDebounce,
		exts:     map[string]struct{}{".lua": {}},
		dirs:     make(map[string]struct{}),
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WatchDirectory registers a directory for change monitoring. Watching
// the same directory twice is a no-op. The first successful call starts
// the event loop.
func (w *Watcher) WatchDirectory(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving watch path %s: %w", dir, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return fmt.Errorf("watcher is stopped")
	}
	if _, ok := w.dirs[abs]; ok {
		return nil
	}

	if w.fsw == nil {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating fsnotify watcher: %w", err)
		}
		w.fsw = fsw
		w.done = make(chan struct{})
		w.wg.Add(1)
		go w.loop(fsw)
	}

	if err := w.fsw.Add(abs); err != nil {
		return fmt.Errorf("watching directory %s: %w", abs, err)
	}
	w.dirs[abs] = struct{}{}

	if w.logger != nil {
		w.logger.Info("watching directory", slog.String("dir", abs))
	}
	return nil
}

// Watching reports whether dir is currently registered.
func (w *Watcher) Watching(dir string) bool {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.dirs[abs]
	return ok
}

// Stop terminates monitoring and waits for the event loop to exit.
// Stopping a watcher that never started, or stopping twice, is safe.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true

	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}

	fsw := w.fsw
	done := w.done
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	close(done)
	err := fsw.Close()
	w.wg.Wait()
	return err
}

// loop consumes file system events until Stop.
func (w *Watcher) loop(fsw *fsnotify.Watcher) {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				w.arm(event.Name)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("watch error", slog.String("error", err.Error()))
			}

		case <-w.done:
			return
		}
	}
}

// relevant reports whether the event is a write or create on a file
// with a watched extension.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	_, ok := w.exts[filepath.Ext(event.Name)]
	return ok
}

// arm starts or resets the debounce timer for a path.
func (w *Watcher) arm(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if timer, ok := w.timers[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		stopped := w.stopped
		w.mu.Unlock()
		if stopped || w.onChange == nil {
			return
		}
		w.onChange(path)
	})
}
