package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the YAML file at path whenever it changes and passes the
// result to onChange. It runs until ctx is cancelled.
//
// The parent directory is watched rather than the file itself, so an
// editor replacing the file by rename keeps being followed. A reload that
// fails is logged and onChange is not called.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	// Fail early on a missing file instead of waiting for it to appear.
	if _, err := Load(abs); err != nil && !isMissingAddress(err) {
		return err
	}

	slog.Info("config: watching for changes", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(abs)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", abs, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", abs)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
