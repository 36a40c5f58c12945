// Package journal implements the store facade: the single seam the
// presentation layer depends on. It hides whether the authoritative
// store is the local cache or the remote repository, tracks the
// in-memory file list, and owns the draft protocol.
package journal

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kallestad/driftmark/internal/apperr"
	"github.com/kallestad/driftmark/internal/classify"
	"github.com/kallestad/driftmark/internal/gitsync"
	"github.com/kallestad/driftmark/internal/localstore"
	"github.com/kallestad/driftmark/internal/models"
)

// Events receives user-visible change notifications.
type Events interface {
	FileChanged(kind, name string)
	SyncStatusChanged(status models.SyncStatus)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) FileChanged(string, string)          {}
func (NopEvents) SyncStatusChanged(models.SyncStatus) {}

// RepoBrowser is the token-scoped slice of the remote client used for
// repository management before a connection exists.
type RepoBrowser interface {
	ValidateToken(ctx context.Context) bool
	ListRepositories(ctx context.Context) ([]models.Repository, error)
	CreateRepository(ctx context.Context, name string) (*models.Repository, error)
}

// BrowserFactory builds a RepoBrowser for a credential token.
type BrowserFactory func(token string) (RepoBrowser, error)

// Service routes every operation to whichever backing store is
// authoritative: the remote repository when connected, the local cache
// otherwise.
type Service struct {
	local      *localstore.Store
	coord      *gitsync.Coordinator
	analyzer   *classify.Analyzer
	newBrowser BrowserFactory
	events     Events
	logger     *slog.Logger

	mu         sync.Mutex
	files      []models.JournalFile
	drafts     map[string]models.JournalFile
	currentID  string
	syncStatus models.SyncStatus
	lastSynced *time.Time

	pushDelay  time.Duration
	pushTimers map[string]*time.Timer
}

// Option configures a Service.
type Option func(*Service)

// WithEvents sets the notification sink.
func WithEvents(e Events) Option {
	return func(s *Service) { s.events = e }
}

// WithPushDelay sets the autosave push debounce window.
func WithPushDelay(d time.Duration) Option {
	return func(s *Service) { s.pushDelay = d }
}

// NewService creates the facade.
func NewService(local *localstore.Store, coord *gitsync.Coordinator, analyzer *classify.Analyzer, browsers BrowserFactory, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		local:      local,
		coord:      coord,
		analyzer:   analyzer,
		newBrowser: browsers,
		events:     NopEvents{},
		logger:     logger.With(slog.String("component", "journal")),
		drafts:     make(map[string]models.JournalFile),
		syncStatus: models.SyncIdle,
		pushDelay:  time.Second,
		pushTimers: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Startup loads persisted state: the file list from the local cache
// and, when a connection was persisted, the remote file set. A failed
// startup pull falls back to the cached copies so the user never faces
// an empty journal over a transient network error.
func (s *Service) Startup(ctx context.Context) error {
	if _, err := s.local.Rescan(s.logger); err != nil {
		return err
	}

	cfg, err := s.local.DB().LoadConnection()
	if err != nil {
		return err
	}
	if cfg != nil {
		if err := s.coord.Resume(*cfg); err != nil {
			return err
		}
		if pulled, err := s.coord.PullAll(ctx); err != nil {
			s.logger.Warn("startup pull failed, serving local cache", slog.String("error", err.Error()))
		} else {
			if err := s.local.ReplaceAll(pulled); err != nil {
				return err
			}
		}
	}

	files, err := s.local.LoadFiles()
	if err != nil {
		return err
	}
	last, err := s.local.DB().LastSync()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.files = files
	s.lastSynced = last
	if len(files) > 0 {
		s.currentID = files[0].ID
	}
	s.mu.Unlock()
	return nil
}

// ListFiles returns drafts followed by stored files, most recently
// updated first.
func (s *Service) ListFiles() []models.JournalFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.JournalFile, 0, len(s.files)+len(s.drafts))
	for _, d := range s.drafts {
		out = append(out, d)
	}
	out = append(out, s.files...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// GetFile returns a file or draft by id.
func (s *Service) GetFile(id string) (*models.JournalFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(id)
}

func (s *Service) findLocked(id string) (*models.JournalFile, error) {
	if d, ok := s.drafts[id]; ok {
		out := d
		return &out, nil
	}
	for _, f := range s.files {
		if f.ID == id {
			out := f
			return &out, nil
		}
	}
	return nil, apperr.ErrNotFound
}

// CreateFile creates a named entry in the authoritative store.
func (s *Service) CreateFile(ctx context.Context, name, content string) (*models.JournalFile, error) {
	name = models.EnsureMarkdownName(name)
	if name == models.MarkdownExt {
		return nil, errors.Join(apperr.ErrValidation, errors.New("empty file name"))
	}

	created, err := s.local.Create(name, content)
	if err != nil {
		return nil, err
	}

	if s.coord.Connected() {
		pushed, err := s.coord.PushOne(ctx, *created)
		if err != nil {
			s.setSyncStatus(models.SyncError)
			s.logger.Warn("remote create failed", slog.String("name", name), slog.String("error", err.Error()))
		} else {
			created = &pushed
			_ = s.local.UpdateSyncStamp(pushed.ID, pushed.RemoteRevision, *pushed.LastSyncedAt)
			s.setSyncStatus(models.SyncSynced)
		}
	}

	s.mu.Lock()
	s.files = append([]models.JournalFile{*created}, s.files...)
	s.currentID = created.ID
	s.mu.Unlock()

	s.events.FileChanged("created", created.Name)
	return created, nil
}

// SaveFile persists updated content. Drafts are updated in memory only.
// When connected, the local mirror is written immediately and the
// remote push is debounced per file, so a burst of autosaves produces
// one commit.
func (s *Service) SaveFile(ctx context.Context, id, content string) (*models.JournalFile, error) {
	s.mu.Lock()
	if d, ok := s.drafts[id]; ok {
		d.Content = content
		d.UpdatedAt = time.Now()
		s.drafts[id] = d
		s.mu.Unlock()
		return &d, nil
	}
	s.mu.Unlock()

	f, err := s.GetFile(id)
	if err != nil {
		return nil, err
	}
	f.Content = content

	saved, err := s.local.Save(*f)
	if err != nil {
		return nil, err
	}
	s.replaceInList(*saved)
	s.events.FileChanged("updated", saved.Name)

	if s.coord.Connected() {
		s.schedulePush(saved.ID)
	}
	return saved, nil
}

// DeleteFile removes a file from the authoritative store, then from the
// in-memory list. When connected, a failed remote delete aborts the
// local removal so the stores do not silently diverge.
func (s *Service) DeleteFile(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.drafts[id]; ok {
		delete(s.drafts, id)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	f, err := s.GetFile(id)
	if err != nil {
		return err
	}

	if s.coord.Connected() && f.RemoteRevision != "" {
		if err := s.coord.DeleteRemote(ctx, *f); err != nil {
			s.setSyncStatus(models.SyncError)
			return err
		}
	}
	if err := s.local.Delete(id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}

	s.mu.Lock()
	s.cancelPushLocked(id)
	for i, existing := range s.files {
		if existing.ID == id {
			s.files = append(s.files[:i], s.files[i+1:]...)
			break
		}
	}
	if s.currentID == id {
		s.currentID = ""
		if len(s.files) > 0 {
			s.currentID = s.files[0].ID
		}
	}
	s.mu.Unlock()

	s.events.FileChanged("deleted", f.Name)
	return nil
}

// SelectFile marks a file as the current one.
func (s *Service) SelectFile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.findLocked(id); err != nil {
		return err
	}
	s.currentID = id
	return nil
}

// replaceInList swaps an updated file into the in-memory list.
func (s *Service) replaceInList(f models.JournalFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.files {
		if existing.ID == f.ID {
			s.files[i] = f
			return
		}
	}
	s.files = append(s.files, f)
}

func (s *Service) setSyncStatus(status models.SyncStatus) {
	s.mu.Lock()
	changed := s.syncStatus != status
	s.syncStatus = status
	s.mu.Unlock()
	if changed {
		s.events.SyncStatusChanged(status)
	}
}

// Status is the facade's observable state.
type Status struct {
	Connected     bool              `json:"connected"`
	State         gitsync.State     `json:"state"`
	SyncStatus    models.SyncStatus `json:"sync_status"`
	LastSynced    *time.Time        `json:"last_synced,omitempty"`
	ConflictNames []string          `json:"conflict_names"`
	CurrentFileID string            `json:"current_file_id,omitempty"`
	Repository    string            `json:"repository,omitempty"`
}

// Status reports connection and sync state.
func (s *Service) Status() Status {
	conflicts := s.coord.Conflicts()
	names := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		names = append(names, c.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Connected:     s.coord.Connected(),
		State:         s.coord.State(),
		SyncStatus:    s.syncStatus,
		LastSynced:    s.lastSynced,
		ConflictNames: names,
		CurrentFileID: s.currentID,
	}
	if cfg := s.coord.Config(); cfg.Owner != "" {
		st.Repository = cfg.Owner + "/" + cfg.Repo
	}
	return st
}

// ExportAll builds the export document from all stored files. Drafts
// are not part of any backing store and are excluded.
func (s *Service) ExportAll() models.Export {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := models.Export{
		Files:      make([]models.ExportedFile, 0, len(s.files)),
		ExportedAt: time.Now(),
		Version:    models.ExportVersion,
	}
	for _, f := range s.files {
		out.Files = append(out.Files, models.ExportedFile{
			Name:      f.Name,
			Content:   f.Content,
			CreatedAt: f.CreatedAt,
			UpdatedAt: f.UpdatedAt,
		})
	}
	return out
}

// ClearAllData wipes everything: files, connection, stored token, and
// in-memory state. This is the privacy escape hatch; callers are
// expected to have exported anything they care about.
func (s *Service) ClearAllData() error {
	s.coord.Disconnect()
	if err := s.local.ClearFiles(); err != nil {
		return err
	}
	if err := s.local.DB().ClearConnection(); err != nil {
		return err
	}
	if err := s.local.DB().ClearToken(); err != nil {
		return err
	}

	s.mu.Lock()
	s.files = nil
	s.drafts = make(map[string]models.JournalFile)
	s.currentID = ""
	s.lastSynced = nil
	s.syncStatus = models.SyncIdle
	for id, t := range s.pushTimers {
		t.Stop()
		delete(s.pushTimers, id)
	}
	s.mu.Unlock()
	return nil
}
