package monitor

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
)

const notifyDebounce = 300 * time.Millisecond

// startNotifier watches the directories under roots and sends a debounced
// signal on wake for every relevant event.
func startNotifier(ctx context.Context, roots []string, f *Filter, wake chan<- struct{}, log *slog.Logger) (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryMonitor, "create filesystem watcher").Build()
	}
	for _, r := range roots {
		matches, _ := doublestar.FilepathGlob(r)
		for _, m := range matches {
			addDirsRecursive(w, m, f, log)
		}
	}

	var mu sync.Mutex
	var timer *time.Timer
	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(notifyDebounce, func() {
			select {
			case wake <- struct{}{}:
			default:
			}
		})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if shouldIgnoreEvent(ev.Name) || f.Skip(ev.Name, false) {
					continue
				}
				if ev.Has(fsnotify.Create) {
					if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
						addDirsRecursive(w, ev.Name, f, log)
					}
				}
				log.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
				trigger()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("Watcher error", logfields.Error(err))
			}
		}
	}()

	return func() {
		_ = w.Close()
		<-done
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}, nil
}

func addDirsRecursive(w *fsnotify.Watcher, root string, f *Filter, log *slog.Logger) {
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		if abs, aerr := filepath.Abs(p); aerr == nil && f.Skip(abs, true) {
			return filepath.SkipDir
		}
		if err := w.Add(p); err != nil {
			log.Warn("Watch add failed", logfields.Path(p), logfields.Error(err))
		}
		return nil
	})
}

// shouldIgnoreEvent filters editor swap files and OS metadata.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasPrefix(base, ".#"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"),
		base == ".DS_Store",
		base == "Thumbs.db":
		return true
	}
	return false
}
