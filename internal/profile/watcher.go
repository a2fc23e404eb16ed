package profile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds the current profile loaded from a file and reloads it when
// the file changes.
type Watcher struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	current  Profile
	onChange []func(Profile)

	watcher  *fsnotify.Watcher
	debounce time.Duration
}

// NewWatcher loads path once. Call Watch to start hot reloading.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		logger:   logger,
		current:  p,
		debounce: 100 * time.Millisecond,
	}, nil
}

// Current returns the latest valid profile.
func (w *Watcher) Current() Profile {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(cb func(Profile)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, cb)
}

// Watch reloads the profile on write or create events until ctx is done. It
// watches the containing directory so editors that replace the file work.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	w.watcher = fw
	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.watcher.Close()
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("profile watch error",
				slog.String("event_type", "profile_watch_error"),
				slog.String("error_hint", "check the profile directory is readable"),
				slog.String("impact", "profile changes may not be picked up"),
				slog.String("error", err.Error()))
		}
	}
}

// reload keeps the previous profile when the new file does not parse.
func (w *Watcher) reload() {
	p, err := Load(w.path)
	if err != nil {
		w.logger.Warn("profile reload failed",
			slog.String("event_type", "profile_reload_failed"),
			slog.String("error_hint", "fix the profile file syntax"),
			slog.String("impact", "previous profile stays in effect"),
			slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	w.current = p
	callbacks := append([]func(Profile){}, w.onChange...)
	w.mu.Unlock()

	w.logger.Info("profile reloaded", slog.String("path", w.path), slog.String("sensitivity", string(p.Sensitivity)))
	for _, cb := range callbacks {
		cb(p)
	}
}
