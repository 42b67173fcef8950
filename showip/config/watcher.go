package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// WatchDebounce is how long the watcher waits for a burst of file events to
// settle before it requests a reload.
const WatchDebounce = 500 * time.Millisecond

// Watcher watches the configuration file and calls a function when the file
// changes. The function runs on a timer goroutine, so it must only do
// something signal-safe, such as raising the pending reload flag of the
// signal router.
//
// The watcher reports its problems to the logger and never to the log
// stream, which only the control loop writes to.
type Watcher struct {
	w        *fsnotify.Watcher
	logger   *slog.Logger
	dir      string
	name     string
	onChange func()
	debounce time.Duration

	mutex sync.Mutex
	timer *time.Timer
}

// TryWatch attempts to watch the given file asynchronously, but it will log
// a warning if, for some reason, it fails to watch it.
func TryWatch(ctx context.Context, path string, logger *slog.Logger, onChange func()) *Watcher {
	w := newWatcher(path, logger, onChange)

	go func() {
		if err := w.init(); err != nil {
			w.logger.Warn("not watching configuration", "path", path, "error", err)
			return
		}

		w.watch(ctx)
	}()

	return w
}

// NewWatcher watches the given file. The watcher is stopped once the given
// context is canceled.
func NewWatcher(ctx context.Context, path string, logger *slog.Logger, onChange func()) (*Watcher, error) {
	w := newWatcher(path, logger, onChange)
	if err := w.init(); err != nil {
		return nil, err
	}

	go w.watch(ctx)
	return w, nil
}

func newWatcher(path string, logger *slog.Logger, onChange func()) *Watcher {
	dir, name := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		logger:   logger.With("component", "watcher"),
		dir:      dir,
		name:     name,
		onChange: onChange,
		debounce: WatchDebounce,
	}
}

func (w *Watcher) init() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}

	// Editors tend to replace files instead of writing them in place, which
	// would drop a watch on the file itself.
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return errors.Wrap(err, "failed to watch dir")
	}

	w.w = watcher
	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	defer w.w.Close()
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return

		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}

			w.logger.Warn("inotify error", "error", err)

		case evt, ok := <-w.w.Events:
			if !ok {
				return
			}

			if w.isChange(evt) {
				w.schedule()
			}
		}
	}
}

// isChange returns true if the event may have changed the file's content.
func (w *Watcher) isChange(evt fsnotify.Event) bool {
	if filepath.Base(evt.Name) != w.name {
		return false
	}

	return evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) schedule() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

func (w *Watcher) stopTimer() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
}
