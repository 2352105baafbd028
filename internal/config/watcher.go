package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/muurk/printhost/internal/logging"
)

// DefaultDebounce is how long the watcher waits for further events before
// reporting a change
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports modifications of a single file.
//
// It watches the parent directory rather than the file itself, since atomic
// saves replace the file and would drop a watch on the old inode.
type Watcher struct {
	path     string
	debounce time.Duration
	started  chan struct{}
}

// NewWatcher creates a watcher for path. A zero debounce uses DefaultDebounce.
func NewWatcher(path string, debounce time.Duration) *Watcher {
	if debounce == 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		started:  make(chan struct{}),
	}
}

// Started is closed once the watch is in place
func (w *Watcher) Started() <-chan struct{} {
	return w.started
}

// Run watches until ctx is cancelled, calling onChange after each burst of
// events on the file settles. onChange runs on the watcher goroutine.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create watched directory: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	close(w.started)

	logging.Info("Watching settings file for changes", zap.String("path", w.path))

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(w.debounce)
			}

		case <-fire:
			logging.Debug("Settings file changed", zap.String("path", w.path))
			onChange()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.Warn("File watcher error", zap.Error(err))
		}
	}
}
