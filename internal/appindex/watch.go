package appindex

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch rebuilds the index when files in the scanned directories change.
// fsnotify is not recursive, so only the top level of each directory is
// watched. Events are debounced. Watch blocks until ctx is done.
func (ix *Index) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("appindex: create watcher: %w", err)
	}
	defer w.Close()

	watched := ix.addWatches(w, nil)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ix.dirsChanged:
			watched = ix.addWatches(w, watched)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Write) {
				continue
			}
			slog.Debug("app directory changed", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(ix.debounce)
			} else {
				timer.Reset(ix.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if _, err := ix.Rebuild(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("app index rebuild failed", "error", err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("app directory watcher error", "error", err)
		}
	}
}

// addWatches syncs the watcher with the current directory list and returns
// the set of watched paths.
func (ix *Index) addWatches(w *fsnotify.Watcher, prev map[string]struct{}) map[string]struct{} {
	next := make(map[string]struct{})
	for _, d := range ix.Dirs() {
		if fi, err := os.Stat(d.Path); err != nil || !fi.IsDir() {
			continue
		}
		next[d.Path] = struct{}{}
		if _, ok := prev[d.Path]; ok {
			continue
		}
		if err := w.Add(d.Path); err != nil {
			slog.Debug("cannot watch app directory", "path", d.Path, "error", err)
			delete(next, d.Path)
		}
	}
	for p := range prev {
		if _, ok := next[p]; !ok {
			_ = w.Remove(p)
		}
	}
	return next
}
