package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kallestad/driftmark/internal/apperr"
	"github.com/kallestad/driftmark/internal/gitsync"
	"github.com/kallestad/driftmark/internal/models"
)

// pushTimeout bounds a single background push triggered by autosave.
const pushTimeout = 30 * time.Second

// ManualSync runs a full reconciliation between the current file set
// and the remote repository. Pending debounced pushes are absorbed into
// the reconcile. Conflicts leave both stores untouched and are reported
// through the result and Status.
func (s *Service) ManualSync(ctx context.Context) (*gitsync.ReconcileResult, error) {
	s.mu.Lock()
	local := append([]models.JournalFile(nil), s.files...)
	for id, t := range s.pushTimers {
		t.Stop()
		delete(s.pushTimers, id)
	}
	s.mu.Unlock()

	s.setSyncStatus(models.SyncSyncing)

	res, err := s.coord.Reconcile(ctx, local)
	if err != nil {
		s.setSyncStatus(models.SyncError)
		return nil, err
	}
	if len(res.Conflicts) > 0 {
		s.setSyncStatus(models.SyncConflict)
		return res, nil
	}

	if err := s.adopt(res.Merged); err != nil {
		return nil, err
	}
	s.markSynced()
	return res, nil
}

// ResolveConflicts takes one definitive version per conflicted file,
// pushes them, and installs the pushed versions locally.
func (s *Service) ResolveConflicts(ctx context.Context, resolved []models.JournalFile) (*gitsync.BulkResult, error) {
	res, err := s.coord.ResolveConflicts(ctx, resolved)
	if err != nil {
		s.setSyncStatus(models.SyncError)
		return nil, err
	}

	for _, f := range res.Synced {
		if err := s.local.Put(f); err != nil {
			return nil, err
		}
		s.replaceInList(f)
		s.events.FileChanged("updated", f.Name)
	}

	if len(res.Failed) > 0 {
		s.setSyncStatus(models.SyncError)
	} else {
		s.markSynced()
	}
	return res, nil
}

// Resolution is one chosen version for a conflicted file.
type Resolution struct {
	Name    string
	Content string
}

// ResolveWith resolves conflicts by name: each resolution picks the
// definitive content for one currently conflicted file. Naming a file
// that is not in conflict is an error.
func (s *Service) ResolveWith(ctx context.Context, resolutions []Resolution) (*gitsync.BulkResult, error) {
	byName := make(map[string]models.JournalFile)
	for _, c := range s.coord.Conflicts() {
		byName[c.Name] = c
	}

	resolved := make([]models.JournalFile, 0, len(resolutions))
	for _, r := range resolutions {
		f, ok := byName[r.Name]
		if !ok {
			return nil, fmt.Errorf("%s is not in conflict: %w", r.Name, apperr.ErrValidation)
		}
		f.Content = r.Content
		f.UpdatedAt = time.Now()
		resolved = append(resolved, f)
	}
	return s.ResolveConflicts(ctx, resolved)
}

// schedulePush arms, or re-arms, the per-file debounce timer. Each new
// save within the window resets it; the push fires once typing stops.
func (s *Service) schedulePush(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pushTimers[id]; ok {
		t.Stop()
	}
	s.pushTimers[id] = time.AfterFunc(s.pushDelay, func() {
		s.pushNow(id)
	})
}

func (s *Service) cancelPushLocked(id string) {
	if t, ok := s.pushTimers[id]; ok {
		t.Stop()
		delete(s.pushTimers, id)
	}
}

// pushNow pushes the current content of one file in the background.
func (s *Service) pushNow(id string) {
	s.mu.Lock()
	delete(s.pushTimers, id)
	s.mu.Unlock()

	f, err := s.GetFile(id)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	pushed, err := s.coord.PushOne(ctx, *f)
	if err != nil {
		s.logger.Warn("background push failed",
			slog.String("name", f.Name), slog.String("error", err.Error()))
		s.setSyncStatus(models.SyncError)
		return
	}

	if err := s.local.UpdateSyncStamp(pushed.ID, pushed.RemoteRevision, *pushed.LastSyncedAt); err != nil {
		s.logger.Warn("stamping pushed file failed", slog.String("name", f.Name), slog.String("error", err.Error()))
	}
	s.replaceInList(pushed)
	s.markSynced()
}

// FlushPendingPushes fires all pending debounced pushes immediately and
// waits for them. Called on shutdown so buffered edits reach the
// repository.
func (s *Service) FlushPendingPushes() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pushTimers))
	for id, t := range s.pushTimers {
		t.Stop()
		ids = append(ids, id)
	}
	s.pushTimers = make(map[string]*time.Timer)
	s.mu.Unlock()

	for _, id := range ids {
		s.pushNow(id)
	}
}
