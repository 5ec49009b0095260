package playbook

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is how long the watcher waits for further file
// events before reloading the library.
const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a Library when files under its root change. Events
// are debounced so an editor save burst triggers one reload.
type Watcher struct {
	library  *Library
	debounce time.Duration
	logger   *slog.Logger

	// Reloaded receives a notification after each completed reload.
	// Buffered; notifications are dropped if nobody is listening.
	Reloaded chan struct{}
}

// NewWatcher creates a watcher over the library. A zero debounce uses
// the default.
func NewWatcher(library *Library, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		library:  library,
		debounce: debounce,
		logger:   logger,
		Reloaded: make(chan struct{}, 1),
	}
}

// Run watches until the context is cancelled. It registers the library
// root and all its subdirectories; directories created later are
// picked up on the reload that their creation event triggers.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	dirs, err := subdirs(w.library.Dir())
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("playbook file changed", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.library.Discover(); err != nil {
				w.logger.Warn("library reload failed", "error", err)
				continue
			}
			// Re-register in case directories appeared.
			if dirs, err := subdirs(w.library.Dir()); err == nil {
				for _, dir := range dirs {
					_ = fsw.Add(dir) // already-watched dirs are no-ops
				}
			}
			select {
			case w.Reloaded <- struct{}{}:
			default:
			}
		}
	}
}

// relevant filters events down to YAML file and directory changes.
func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	ext := filepath.Ext(event.Name)
	return ext == ".yaml" || ext == ".yml" || ext == ""
}
