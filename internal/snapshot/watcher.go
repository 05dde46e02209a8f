package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mfenderov/wikibot/pkg/models"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before reloading.
const DefaultDebounce = 250 * time.Millisecond

// Watch reloads the snapshot at path whenever it is replaced and passes the
// result to onLoad. Snapshots that fail to load are logged and skipped, so the
// caller keeps serving the previous one. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file, because Save
// replaces the file with a rename.
func Watch(ctx context.Context, path string, debounce time.Duration, onLoad func(*models.Snapshot)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve snapshot path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	slog.Info("watching snapshot", "path", abs)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

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
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			slog.Debug("snapshot changed", "path", abs, "op", event.Op.String())
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("snapshot watcher error", "error", err)

		case <-timer.C:
			snap, err := Load(abs)
			if err != nil {
				slog.Warn("keeping previous snapshot", "path", abs, "error", err)
				continue
			}
			slog.Info("snapshot reloaded", "path", abs, "pages", snap.Len())
			onLoad(snap)
		}
	}
}
