package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"marlin/internal/logger"
)

// debounce absorbs the editor write-then-rename event bursts.
const debounce = 500 * time.Millisecond

// Watch reloads the config file on change and hands the validated result
// to onChange. Only the policy, risk and execution sections are meant to
// take effect at runtime; connection-level changes need a restart and the
// caller decides what it applies. Invalid edits are logged and skipped,
// the previous configuration stays active.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors replace the file, which would orphan a
	// file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		reload := func() {
			cfg, err := Load(path)
			if err != nil {
				logger.Errorf("[config] reload rejected: %v", err)
				return
			}
			logger.Infof("[config] reloaded %s", path)
			onChange(cfg)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("[config] watcher: %v", err)
			}
		}
	}()
	return nil
}
