package server

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 100 * time.Millisecond

const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// watcher reports changes to a fixed set of files. It subscribes to their
// parent directories so that editors which save by renaming a temp file over
// the original are still noticed.
type watcher struct {
	fs       *fsnotify.Watcher
	files    map[string]struct{}
	debounce time.Duration
}

// newWatcher registers the watches before returning, so every change made
// after it returns is reported.
func newWatcher(paths []string, debounce time.Duration) (*watcher, error) {
	if debounce <= 0 {
		debounce = defaultReloadDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("file watcher: %w", err)
	}

	w := &watcher{fs: fsw, files: make(map[string]struct{}, len(paths)), debounce: debounce}
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("file watcher: %w", err)
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("file watcher: watch %s: %w", dir, err)
		}
	}
	return w, nil
}

func (w *watcher) Close() error {
	return w.fs.Close()
}

// wait blocks until a watched file is created, written, removed or renamed
// and returns its path, or returns false once ctx is done. Events arriving
// within the debounce window of the first one are folded into it.
func (w *watcher) wait(ctx context.Context) (string, bool) {
	var (
		changed string
		settle  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return "", false
		case <-settle:
			return changed, true
		case ev, ok := <-w.fs.Events:
			if !ok {
				return "", false
			}
			if !ev.Has(relevantOps) {
				continue
			}
			if _, watched := w.files[filepath.Clean(ev.Name)]; !watched {
				continue
			}
			if settle == nil {
				changed = filepath.Clean(ev.Name)
				settle = time.After(w.debounce)
			}
		case _, ok := <-w.fs.Errors:
			if !ok {
				return "", false
			}
		}
	}
}
