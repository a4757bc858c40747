package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period Watch waits for before firing.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc is called by Watch once the workspace has settled after a
// change. paths lists the files that changed.
type ChangeFunc func(ctx context.Context, paths []string)

// Watch observes the workspace under root until ctx is cancelled and calls
// onChange after a burst of changes to asset files, or files assets import,
// has been quiet for debounce.
//
// New directories created at runtime are added to the watch list unless
// they are excluded.
func Watch(ctx context.Context, root string, filter *Filter, debounce time.Duration, logger *slog.Logger, onChange ChangeFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root, filter); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root), slog.Duration("debounce", debounce))

	var timer *time.Timer
	var fire <-chan time.Time
	changed := make(map[string]struct{})

	schedule := func(path string) {
		changed[path] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
			return
		}
		timer.Reset(debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			paths := make([]string, 0, len(changed))
			for p := range changed {
				paths = append(paths, p)
			}
			clear(changed)
			timer, fire = nil, nil
			logger.Debug("watcher: settled", slog.Int("changes", len(paths)))
			onChange(ctx, paths)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			path := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
					if filter.Excluded(path) {
						continue
					}
					if addErr := addDirsRecursive(w, path, filter); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", path),
							slog.String("error", addErr.Error()))
						continue
					}
					logger.Debug("watcher: watching new dir", slog.String("path", path))
					// Files may have landed before the watch was added.
					schedule(path)
					continue
				}
			}

			if !filter.Related(path) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("watcher: change", slog.String("path", path), slog.String("op", ev.Op.String()))
			schedule(path)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and its non-excluded subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string, filter *Filter) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && filter.Excluded(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
