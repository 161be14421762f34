package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/extauth/internal/logger"
)

// DefaultWatchDebounce coalesces bursts of events produced by editors that
// write through a temp file and rename.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watch calls onChange with a freshly parsed provider configuration whenever
// the file at path changes. The parent directory is watched so that atomic
// rename-style saves are noticed. Parse errors are logged and the previous
// configuration stays active. Watch returns once the watcher is running; it
// stops when ctx is cancelled.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(AuthConfig)) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	logger.Info("Config watcher started", logger.KeyPath, abs)

	go func() {
		defer func() { _ = watcher.Close() }()

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}

				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					if ctx.Err() != nil {
						return
					}
					auth, err := reloadAuth(abs)
					if err != nil {
						logger.Warn("Config reload skipped", logger.KeyPath, abs, logger.Err(err))
						return
					}
					onChange(auth)
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error", logger.Err(err))
			}
		}
	}()

	return nil
}

func reloadAuth(path string) (AuthConfig, error) {
	_, data, err := readConfigFile(path)
	if err != nil {
		return AuthConfig{}, err
	}
	if data == nil {
		return AuthConfig{}, fmt.Errorf("config file %s disappeared", path)
	}
	return ParseAuthConfig(data)
}
