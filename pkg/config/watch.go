package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/crystal-mush/gotinytf/pkg/logging"
	"github.com/fsnotify/fsnotify"
)

// WatchFile calls onChange whenever the file at path is written or
// re-created, until ctx is cancelled. The parent directory is watched so
// editors that replace the file by rename are still seen.
func WatchFile(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	log := logging.GetLogger("config.watch")
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				log.Info().Str("file", abs).Msg("file changed")
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("watcher error")
			}
		}
	}()
	log.Debug().Str("file", abs).Msg("watching for changes")
	return nil
}
