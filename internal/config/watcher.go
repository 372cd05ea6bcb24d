package config

import (
	"log/slog"
	"maps"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/smazurov/spawn/internal/logging"
)

// DefaultDebounce is how long a burst of writes must settle before the
// config file is read again.
const DefaultDebounce = 500 * time.Millisecond

// LoggingWatcher re-reads the [logging] table of a config file when the file
// changes and passes the new levels to apply. apply is only called when a
// level actually changed; format and the supervisor settings are fixed at
// startup.
//
// The parent directory is watched rather than the file itself so that
// editors and config management tools replacing the file by rename are
// still seen.
type LoggingWatcher struct {
	path     string
	debounce time.Duration
	apply    func(logging.Config)
	logger   *slog.Logger

	fsw      *fsnotify.Watcher
	current  logging.Config
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewLoggingWatcher creates a watcher for path. Nothing happens until Start.
func NewLoggingWatcher(path string, debounce time.Duration, apply func(logging.Config), logger *slog.Logger) *LoggingWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingWatcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		apply:    apply,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start reads the file once as the baseline and begins watching it.
func (w *LoggingWatcher) Start() error {
	current, err := LoadLoggingConfig(w.path)
	if err != nil {
		return err
	}
	w.current = current

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if addErr := fsw.Add(filepath.Dir(w.path)); addErr != nil {
		fsw.Close()
		return addErr
	}
	w.fsw = fsw

	w.logger.Info("Watching config file for logging changes", "path", w.path, "debounce", w.debounce)
	go w.watch()
	return nil
}

// Stop ends watching. apply is never called after Stop returns.
func (w *LoggingWatcher) Stop() error {
	if w.fsw == nil {
		return nil
	}
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
		err = w.fsw.Close()
	})
	return err
}

func (w *LoggingWatcher) watch() {
	defer close(w.done)

	var settle *time.Timer
	var settleC <-chan time.Time
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// Write for in-place edits, Create for a file renamed over ours
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if settle == nil {
				settle = time.NewTimer(w.debounce)
			} else {
				settle.Reset(w.debounce)
			}
			settleC = settle.C

		case <-settleC:
			settleC = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

// reload keeps the current levels when the file no longer parses.
func (w *LoggingWatcher) reload() {
	next, err := LoadLoggingConfig(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping logging levels", "path", w.path, "error", err)
		return
	}
	if next.Level == w.current.Level && maps.Equal(next.Modules, w.current.Modules) {
		w.logger.Debug("Config file changed, logging levels unchanged", "path", w.path)
		return
	}
	w.current = next
	w.apply(next)
}
