package truststore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jonwraymond/fhirgate/observe"
)

// DefaultDebounce coalesces bursts of filesystem events for one file.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reports changes to credential store files on disk.
//
// The transport context is never rebuilt in-process; a reported change is a
// signal for the operator to restart.
type Watcher struct {
	watcher  *fsnotify.Watcher
	paths    map[string]bool
	logger   observe.Logger
	debounce time.Duration

	closeOnce sync.Once
}

// NewWatcher watches the parent directory of each path. Packaged-resource
// locators are skipped.
func NewWatcher(locations []string, logger observe.Logger) (*Watcher, error) {
	if logger == nil {
		logger = observe.NopLogger()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("truststore: create watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fw,
		paths:    make(map[string]bool),
		logger:   observe.WithComponent(logger, "truststore.watch"),
		debounce: DefaultDebounce,
	}

	dirs := make(map[string]bool)
	for _, loc := range locations {
		p, ok := LocalPath(loc)
		if !ok {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("truststore: resolve %q: %w", loc, err)
		}
		w.paths[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("truststore: watch %q: %w", dir, err)
		}
		dirs[dir] = true
	}

	return w, nil
}

// Paths returns the number of watched files.
func (w *Watcher) Paths() int { return len(w.paths) }

// Run delivers debounced change notifications to onChange until ctx is done
// or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) {
	defer w.Close()

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Clean(event.Name)
			if !w.paths[name] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			mu.Lock()
			if t, ok := timers[name]; ok {
				t.Stop()
			}
			timers[name] = time.AfterFunc(w.debounce, func() {
				w.logger.Warn(ctx, "trust material changed on disk; restart to apply",
					observe.F("path", name),
					observe.F("op", event.Op.String()),
				)
				onChange(name)
			})
			mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error(ctx, "watcher error", observe.Err(err))
		}
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
	})
	return err
}
