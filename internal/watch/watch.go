// Package watch re-audits a skill directory whenever its files change.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDefault coalesces bursts of file events into one re-audit.
const debounceDefault = 500 * time.Millisecond

var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".skillfence":  true,
}

// Watcher triggers a handler after changes inside a skill root settle.
type Watcher struct {
	root     string
	handler  func()
	debounce time.Duration

	mu      sync.Mutex
	pending bool
}

// New creates a watcher over one skill root. The handler runs on the
// watcher's goroutine; it should be quick or manage its own concurrency.
func New(root string, handler func()) *Watcher {
	return &Watcher{root: root, handler: handler, debounce: debounceDefault}
}

// Run blocks until ctx is cancelled, re-running the handler after each
// debounced batch of events. Newly created directories are added to the
// watch set as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := addRecursive(watcher, w.root); err != nil {
		return err
	}

	// Single debounce timer, reset on each event. Initialized stopped;
	// the first event starts it.
	debounceTimer := time.NewTimer(w.debounce)
	debounceTimer.Stop()
	defer debounceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-debounceTimer.C:
			w.mu.Lock()
			fire := w.pending
			w.pending = false
			w.mu.Unlock()
			if fire {
				w.handler()
			}

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ignored(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				// Best effort: new subdirectories join the watch set.
				_ = addRecursive(watcher, event.Name)
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			w.mu.Lock()
			w.pending = true
			w.mu.Unlock()

			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(w.debounce)

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Races with deletions are expected; skip what vanished.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if ignoredDirs[d.Name()] {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	})
}

func ignored(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if ignoredDirs[part] {
			return true
		}
	}
	return false
}
