package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/conform/internal/scanner"
)

// DefaultDebounce is how long the watcher waits for more changes before
// re-checking.
const DefaultDebounce = 300 * time.Millisecond

// ChangeFunc is called with the sorted paths that changed since the last
// call. It runs on the watcher goroutine, so calls never overlap.
type ChangeFunc func(ctx context.Context, changed []string) error

// Watcher re-runs a check when watched targets change.
//
// Files are watched through their parent directory so editors that save by
// rename are still seen. Directories are watched recursively; only files
// with a known extension count as changes.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	files    map[string]bool // watched files
	roots    []string        // watched directory trees
}

// NewWatcher watches the given file and directory paths.
func NewWatcher(paths []string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		debounce: debounce,
		files:    make(map[string]bool),
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			fsw.Close()
			return nil, newInputError(ErrCodeTargetNotFound, p, "cannot watch", err)
		}
		if info.IsDir() {
			w.roots = append(w.roots, abs)
			if err := w.addRecursive(abs); err != nil {
				fsw.Close()
				return nil, fmt.Errorf("watch %s: %w", p, err)
			}
			continue
		}
		w.files[abs] = true
		if err := fsw.Add(filepath.Dir(abs)); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", p, err)
		}
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run delivers debounced changes to fn until ctx is done. Errors from fn
// are logged and watching continues.
func (w *Watcher) Run(ctx context.Context, fn ChangeFunc) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			pending[event.Name] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("watcher error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]bool)

			slog.Debug("targets changed", "paths", changed)
			if err := fn(ctx, changed); err != nil {
				slog.Error("re-check failed", "error", err)
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}
	path := event.Name
	if w.files[path] {
		return true
	}
	for _, root := range w.roots {
		if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
			continue
		}
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				w.addNewDirectory(path)
				return false
			}
		}
		return scanner.KnownExtension(path)
	}
	return false
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		base := d.Name()
		if path != root && (excludedDirs[base] || strings.HasPrefix(base, ".")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			slog.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) addNewDirectory(path string) {
	base := filepath.Base(path)
	if excludedDirs[base] || strings.HasPrefix(base, ".") {
		return
	}
	if err := w.addRecursive(path); err != nil {
		slog.Warn("failed to watch new directory", "path", path, "error", err)
	}
}
