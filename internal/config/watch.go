package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/specialistvlad/codebox/internal/ctxlog"
)

// reloadDelay coalesces the burst of events editors produce for one save.
const reloadDelay = 100 * time.Millisecond

// ReloadFunc re-reads the configuration.
type ReloadFunc func(ctx context.Context) (*Model, error)

// Watch blocks until ctx is done. Whenever the file at path (or any file in
// it, for a directory) changes, it calls reload and hands a successfully
// validated Model to apply. Reload failures are logged and the previous
// configuration stays in effect.
func Watch(ctx context.Context, path string, reload ReloadFunc, apply func(*Model)) error {
	logger := ctxlog.FromContext(ctx)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	dir, file := path, ""
	if !info.IsDir() {
		// Watch the parent: editors often replace the file instead of writing it.
		dir, file = filepath.Dir(path), filepath.Clean(path)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	logger.Info("👀 Watching configuration for changes.", "path", path)

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if file != "" && filepath.Clean(ev.Name) != file {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("Configuration change detected.", "event", ev.String())
			timer.Reset(reloadDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Configuration watcher error.", "error", err)
		case <-timer.C:
			m, err := reload(ctx)
			if err != nil {
				logger.Error("Configuration reload failed, keeping previous configuration.", "error", err)
				continue
			}
			logger.Info("Configuration reloaded.")
			apply(m)
		}
	}
}
