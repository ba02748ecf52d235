package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher reloads the configuration when its file changes.
type Watcher struct {
	path     string
	load     func() (Config, error)
	apply    func(Config)
	onError  func(error)
	delay    time.Duration
	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher builds a watcher for path. load rebuilds the effective config,
// apply receives each valid reload and onError each failed one.
func NewWatcher(path string, load func() (Config, error), apply func(Config), onError func(error)) *Watcher {
	if onError == nil {
		onError = func(error) {}
	}
	return &Watcher{path: path, load: load, apply: apply, onError: onError, delay: defaultDebounce}
}

// Run watches the file's directory until ctx is done. Editors often replace
// files by rename, so the directory is watched instead of the file.
func (w *Watcher) Run(ctx context.Context) error {
	if w.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config watcher: watch %s: %w", dir, err)
	}
	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.onError(err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, w.reload)
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		w.onError(err)
		return
	}
	w.apply(cfg)
}
