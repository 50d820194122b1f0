package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/angora-org/angora/internal/logger"
)

// watchDebounce coalesces bursts of filesystem events into one reload.
const watchDebounce = 500 * time.Millisecond

// Watch reloads the catalog whenever a file under the pattern's base
// directory changes. It blocks until the context is canceled.
func (c *Catalog) Watch(ctx context.Context) error {
	base, _ := doublestar.SplitPattern(c.pattern)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(base); err != nil {
		return fmt.Errorf("failed to watch %s: %w", base, err)
	}
	logger.Info(ctx, "Watching task files", "dir", base)

	var debounce *time.Timer
	var reloadCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
				reloadCh = debounce.C
			} else {
				debounce.Reset(watchDebounce)
			}

		case <-reloadCh:
			debounce = nil
			reloadCh = nil
			if err := c.Reload(ctx); err != nil {
				// Keep serving the previous snapshot.
				logger.Warn(ctx, "Task files changed but reload failed", "err", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn(ctx, "Catalog watcher error", "err", err)
		}
	}
}
