// Package watch re-triggers builds when declared input files change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sugi-a/omochamake/internal/logging"
)

// Watcher observes a fixed set of files and invokes a callback after a
// quiet period. Bursts of events (editors often write a file several times
// in quick succession) are coalesced into one callback.
type Watcher struct {
	paths    map[string]struct{}
	debounce time.Duration
	log      *slog.Logger
}

// New returns a watcher over the given file paths. debounce <= 0 defaults
// to 200ms.
func New(paths []string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[filepath.Clean(p)] = struct{}{}
	}
	return &Watcher{paths: set, debounce: debounce, log: logging.New("watch")}
}

// Run blocks, invoking onChange after each coalesced burst of changes to
// the watched files, until the context is canceled. Watching happens at
// directory granularity so files recreated by rename (the usual atomic-save
// pattern) keep being observed.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dirs := make(map[string]struct{})
	for p := range w.paths {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for d := range dirs {
		if err := fw.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debug("change detected", "path", ev.Name, "op", ev.Op.String())
			fire = time.After(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		case <-fire:
			fire = nil
			onChange()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	_, ok := w.paths[filepath.Clean(ev.Name)]
	return ok
}
