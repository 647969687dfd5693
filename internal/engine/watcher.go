package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher triggers sync passes when the local bookmark store file
// changes on disk. Bursts of writes are coalesced by a debounce window
// so an import does not fire a pass per row. A pass's own writes re-fire
// the watcher once; the follow-up pass finds nothing to do and the chain
// stops there.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	trigger  func(context.Context)
}

// NewWatcher watches the database at path. trigger runs after the
// debounce window closes; it is invoked from the watch goroutine, one
// call at a time.
func NewWatcher(path string, debounce time.Duration, logger *slog.Logger, trigger func(context.Context)) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		path:     path,
		debounce: debounce,
		logger:   logger,
		trigger:  trigger,
	}
}

// Watch blocks until the context is cancelled. The database's directory
// is watched rather than the file itself; SQLite replaces and renames
// sidecar files, which would silently drop a file-level watch.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("adding store directory to watcher: %w", err)
	}

	var timer *time.Timer

	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}

			if !w.relevant(event) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C

				continue
			}

			if !timer.Stop() {
				<-timer.C
			}

			timer.Reset(w.debounce)

		case <-fire:
			timer = nil
			fire = nil

			w.logger.Debug("local store changed, triggering sync",
				slog.String("path", w.path),
			)
			w.trigger(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}

			w.logger.Warn("watcher error", slog.Any("error", err))
		}
	}
}

// relevant reports whether the event touches the store file or one of
// its SQLite sidecars (-journal, -wal, -shm).
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}

	return strings.HasPrefix(filepath.Clean(event.Name), filepath.Clean(w.path))
}
