package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to a single file, debounced so editors that
// write in several steps trigger one callback.
type Watcher struct {
	path     string
	debounce time.Duration
	fw       *fsnotify.Watcher
}

// NewWatcher watches path. The parent directory is watched rather than the
// file itself, so replace-by-rename saves keep working.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{path: abs, debounce: debounce, fw: fw}, nil
}

// Run delivers debounced change notifications to fn until ctx is done or
// the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context, fn func()) error {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			return err
		case <-fire:
			fire = nil
			fn()
		}
	}
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.fw.Close()
}
