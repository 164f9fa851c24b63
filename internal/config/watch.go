package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "schedulr/internal/log"
)

const watchDebounce = 250 * time.Millisecond

// Watch reloads the config at path whenever the file changes and passes the
// new value to onChange. Editors often replace files via rename, so the
// parent directory is watched and events are matched by basename.
// Watch blocks until ctx is canceled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	appLog.Debug("config watcher started", "dir", dir, "file", file)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	debounce := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			appLog.Error("config watch error", err, "dir", dir)
		case <-fire:
			// Load would write defaults over a file that is mid-rename.
			if _, err := os.Stat(path); err != nil {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				appLog.Error("config reload failed; keeping previous config", err, "path", path)
				continue
			}
			cfg.ApplyEnv()
			appLog.Info("config reloaded", "path", path)
			onChange(cfg)
		}
	}
}
