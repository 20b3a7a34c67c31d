// Package credwatch reloads provider credentials from a secrets file when
// it changes on disk, so a credential rotation takes effect without a
// restart and invalidates any cached token.
package credwatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/starford/raido/internal/models"
)

// Load reads and parses the secrets file.
func Load(path string) (models.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("credwatch: read %s: %w", path, err)
	}
	var creds models.Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return models.Credentials{}, fmt.Errorf("credwatch: parse %s: %w", path, err)
	}
	if creds.Empty() {
		return models.Credentials{}, fmt.Errorf("credwatch: %s: identity and secret are required", path)
	}
	return creds, nil
}

// Watch monitors the secrets file until ctx is cancelled and calls onChange
// with the freshly parsed credentials after each modification. The parent
// directory is watched rather than the file itself because editors and
// secret managers replace files by rename, which drops a file-level watch.
// Events are debounced so one save produces one reload.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(models.Credentials)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("credwatch: resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("credwatch: new watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("credwatch: watch %s: %w", filepath.Dir(abs), err)
	}

	logger.Info("credwatch: started", slog.String("path", abs))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(200 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("credwatch: stopped")
			return nil

		case <-reloadCh:
			creds, loadErr := Load(abs)
			if loadErr != nil {
				logger.Warn("credwatch: reload failed", slog.String("error", loadErr.Error()))
				continue
			}
			logger.Info("credwatch: credentials reloaded")
			onChange(creds)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Name != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("credwatch: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
