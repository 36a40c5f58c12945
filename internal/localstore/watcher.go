package localstore

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kallestad/driftmark/internal/models"
)

// EventCallback is called for each change found by a watcher-driven
// rescan. kind is one of "created", "updated", "deleted".
type EventCallback func(kind, name string)

// Watch starts an fsnotify watcher on the vault directory and processes
// change events until ctx is cancelled. Events are debounced into a
// single Rescan pass, so editors that write via temp files produce one
// callback per logical change.
func Watch(ctx context.Context, store *Store, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(store.Vault().Root()); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", store.Vault().Root()))

	// rescanTimer debounces bursts of events into one pass.
	var rescanTimer *time.Timer
	var rescanCh <-chan time.Time

	scheduleRescan := func() {
		if rescanTimer == nil {
			rescanTimer = time.NewTimer(200 * time.Millisecond)
			rescanCh = rescanTimer.C
		} else {
			rescanTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if rescanTimer != nil {
				rescanTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-rescanCh:
			changes, err := store.Rescan(logger)
			if err != nil {
				logger.Warn("watcher: rescan failed", slog.String("error", err.Error()))
				continue
			}
			for _, c := range changes {
				logger.Debug("watcher: change", slog.String("kind", c.Kind), slog.String("name", c.Name))
				if cb != nil {
					cb(c.Kind, c.Name)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(ev) {
				continue
			}
			scheduleRescan()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// relevantEvent filters out our own temp files and non-markdown noise.
func relevantEvent(ev fsnotify.Event) bool {
	name := ev.Name
	if strings.Contains(name, ".driftmark-tmp-") {
		return false
	}
	if !strings.HasSuffix(name, models.MarkdownExt) {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
