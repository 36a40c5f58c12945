package journal

import (
	"context"
	"time"

	"github.com/kallestad/driftmark/internal/apperr"
	"github.com/kallestad/driftmark/internal/models"
)

// CreateDraft starts an unnamed entry. Drafts live only in memory; no
// vault file, no metadata row, no remote commit until the draft is
// confirmed with a name.
func (s *Service) CreateDraft() models.JournalFile {
	now := time.Now()
	d := models.JournalFile{
		ID:        models.NewDraftID(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.drafts[d.ID] = d
	s.currentID = d.ID
	s.mu.Unlock()
	return d
}

// ConfirmDraft names a draft and promotes it to a real entry in the
// authoritative store. The draft is discarded on success.
func (s *Service) ConfirmDraft(ctx context.Context, id, name string) (*models.JournalFile, error) {
	s.mu.Lock()
	d, ok := s.drafts[id]
	s.mu.Unlock()
	if !ok {
		return nil, apperr.ErrNotFound
	}

	created, err := s.CreateFile(ctx, name, d.Content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.drafts, id)
	s.mu.Unlock()
	return created, nil
}

// CancelDraft discards a draft.
func (s *Service) CancelDraft(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.drafts, id)
	if s.currentID == id {
		s.currentID = ""
		if len(s.files) > 0 {
			s.currentID = s.files[0].ID
		}
	}
	return nil
}
