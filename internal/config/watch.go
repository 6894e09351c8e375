package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logpkg "github.com/rzbill/relay/pkg/log"
)

// watchDebounce coalesces the burst of events editors emit for one save.
const watchDebounce = 250 * time.Millisecond

// Watch calls fn with the re-parsed configuration (environment overrides
// applied) each time the file at path changes and still parses and
// validates. It watches the parent directory so atomic rename-on-save is
// observed. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, logger logpkg.Logger, fn func(Config)) error {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(path)
	file := filepath.Base(path)
	if err := w.Add(dir); err != nil {
		return err
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			logger.Warn("config reload failed", logpkg.Str("path", path), logpkg.Err(err))
			return
		}
		FromEnv(&cfg)
		if err := cfg.Validate(); err != nil {
			logger.Warn("config rejected", logpkg.Str("path", path), logpkg.Err(err))
			return
		}
		logger.Info("config reloaded", logpkg.Str("path", path))
		fn(cfg)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				if ctx.Err() == nil {
					reload()
				}
			})
			timerMu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watch error", logpkg.Str("dir", dir), logpkg.Err(err))
		}
	}
}
