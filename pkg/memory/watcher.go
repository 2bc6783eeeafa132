package memory

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// StoreWatcher watches a store directory and invalidates the configuration
// when document files change out-of-band. Polling staleness detection is
// the correctness mechanism; the watcher only narrows the window in
// long-running processes.
type StoreWatcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	onChange func()
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
}

// NewStoreWatcher creates a watcher that calls onChange (debounced) after
// document files are written, created, or removed.
func NewStoreWatcher(logger zerolog.Logger, onChange func()) (*StoreWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &StoreWatcher{
		watcher:  watcher,
		logger:   logger,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	go w.run()

	return w, nil
}

// Watch starts watching the store directory and its existing category
// subdirectories. fsnotify is not recursive.
func (w *StoreWatcher) Watch(root string) error {
	if err := w.watcher.Add(root); err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Stop stops the watcher.
func (w *StoreWatcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *StoreWatcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// New category directories need their own watch.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.maybeWatchDir(event.Name)
				}
			}

			if !strings.HasSuffix(strings.ToLower(event.Name), ".md") {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				w.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Store change detected")

				w.scheduleChange()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Store watcher error")

		case <-w.stopCh:
			return
		}
	}
}

func (w *StoreWatcher) maybeWatchDir(path string) {
	if err := w.watcher.Add(path); err != nil {
		w.logger.Debug().Err(err).Str("path", path).Msg("Could not watch new path")
	}
}

// scheduleChange debounces the change notification.
func (w *StoreWatcher) scheduleChange() {
	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		w.logger.Debug().Msg("Invalidating after store changes")
		w.onChange()
	})
}
