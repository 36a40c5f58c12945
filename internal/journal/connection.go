package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/kallestad/driftmark/internal/apperr"
	"github.com/kallestad/driftmark/internal/models"
)

// ConnectResult reports the outcome of a connect. Conflicts is only set
// when local entries were migrated into a repository that already held
// differing copies.
type ConnectResult struct {
	Repository *models.Repository
	Conflicts  []models.JournalFile
}

// Connect links the journal to a repository and makes it the source of
// truth. Without migration, all prior file state is dropped before the
// repository's entries are pulled. With migration, the current local
// entries are reconciled into the repository instead; conflicts abort
// the merge and are returned for resolution.
func (s *Service) Connect(ctx context.Context, cfg models.ConnectionConfig, migrate bool) (*ConnectResult, error) {
	var carried []models.JournalFile
	if migrate {
		s.mu.Lock()
		carried = append(carried, s.files...)
		s.mu.Unlock()
	}

	repo, err := s.coord.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	db := s.local.DB()
	if err := db.SaveToken(cfg.Token); err != nil {
		return nil, err
	}
	if err := db.SaveConnection(cfg); err != nil {
		return nil, err
	}

	if migrate {
		res, err := s.coord.Reconcile(ctx, carried)
		if err != nil {
			s.setSyncStatus(models.SyncError)
			return nil, err
		}
		if len(res.Conflicts) > 0 {
			s.setSyncStatus(models.SyncConflict)
			return &ConnectResult{Repository: repo, Conflicts: res.Conflicts}, nil
		}
		if err := s.adopt(res.Merged); err != nil {
			return nil, err
		}
		s.markSynced()
		return &ConnectResult{Repository: repo}, nil
	}

	if err := s.resetFileState(); err != nil {
		return nil, err
	}
	pulled, err := s.coord.PullAll(ctx)
	if err != nil {
		s.setSyncStatus(models.SyncError)
		return nil, err
	}
	if err := s.adopt(pulled); err != nil {
		return nil, err
	}
	s.markSynced()
	return &ConnectResult{Repository: repo}, nil
}

// Disconnect detaches from the remote repository. The local cache keeps
// the last synced copies and becomes authoritative again. The stored
// token survives unless forgetToken is set, so reconnecting later does
// not require re-entering the credential.
func (s *Service) Disconnect(forgetToken bool) error {
	s.coord.Disconnect()

	db := s.local.DB()
	if err := db.ClearConnection(); err != nil {
		return err
	}
	if forgetToken {
		if err := db.ClearToken(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.lastSynced = nil
	for id, t := range s.pushTimers {
		t.Stop()
		delete(s.pushTimers, id)
	}
	s.mu.Unlock()

	s.setSyncStatus(models.SyncIdle)
	return nil
}

// SwitchRepository reconnects to a different repository using the
// stored token. File state from the previous repository is cleared, not
// merged.
func (s *Service) SwitchRepository(ctx context.Context, owner, repo string) (*ConnectResult, error) {
	token, err := s.local.DB().LoadToken()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, fmt.Errorf("no stored token: %w", apperr.ErrAuth)
	}

	s.coord.Disconnect()
	return s.Connect(ctx, models.ConnectionConfig{Token: token, Owner: owner, Repo: repo}, false)
}

// resetFileState drops all file state, on disk and in memory. Settings,
// including the stored token, are untouched.
func (s *Service) resetFileState() error {
	if err := s.local.ClearFiles(); err != nil {
		return err
	}

	s.mu.Lock()
	s.files = nil
	s.drafts = make(map[string]models.JournalFile)
	s.currentID = ""
	for id, t := range s.pushTimers {
		t.Stop()
		delete(s.pushTimers, id)
	}
	s.mu.Unlock()
	return nil
}

// adopt installs a file set as the current one, mirroring it into the
// local cache.
func (s *Service) adopt(files []models.JournalFile) error {
	if err := s.local.ReplaceAll(files); err != nil {
		return err
	}

	s.mu.Lock()
	s.files = append([]models.JournalFile(nil), files...)
	if s.currentID == "" && len(files) > 0 {
		s.currentID = files[0].ID
	}
	s.mu.Unlock()
	return nil
}

func (s *Service) markSynced() {
	now := time.Now()
	if err := s.local.DB().SetLastSync(now); err != nil {
		s.logger.Warn("persisting sync time failed", "error", err.Error())
	}

	s.mu.Lock()
	s.lastSynced = &now
	s.mu.Unlock()
	s.setSyncStatus(models.SyncSynced)
}

// StoreToken persists a credential token independently of any
// connection.
func (s *Service) StoreToken(token string) error {
	if token == "" {
		return fmt.Errorf("empty token: %w", apperr.ErrValidation)
	}
	return s.local.DB().SaveToken(token)
}

// StoredToken returns the persisted token, empty when none is stored.
func (s *Service) StoredToken() (string, error) {
	return s.local.DB().LoadToken()
}

// ClearStoredToken forgets the persisted token.
func (s *Service) ClearStoredToken() error {
	return s.local.DB().ClearToken()
}

// ValidateToken checks a credential against the remote service.
func (s *Service) ValidateToken(ctx context.Context, token string) (bool, error) {
	b, err := s.newBrowser(token)
	if err != nil {
		return false, err
	}
	return b.ValidateToken(ctx), nil
}

// ListRepositories lists the repositories the token can reach.
func (s *Service) ListRepositories(ctx context.Context, token string) ([]models.Repository, error) {
	b, err := s.newBrowser(token)
	if err != nil {
		return nil, err
	}
	return b.ListRepositories(ctx)
}

// CreateRepository creates a fresh private journal repository.
func (s *Service) CreateRepository(ctx context.Context, token, name string) (*models.Repository, error) {
	b, err := s.newBrowser(token)
	if err != nil {
		return nil, err
	}
	return b.CreateRepository(ctx, name)
}

// AnalyzeRepository classifies a candidate repository. Advisory only;
// the result never blocks a connect.
func (s *Service) AnalyzeRepository(ctx context.Context, token, owner, repo string) models.RepositoryAnalysis {
	return s.analyzer.Analyze(ctx, token, owner, repo)
}
