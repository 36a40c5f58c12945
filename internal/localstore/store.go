package localstore

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kallestad/driftmark/internal/apperr"
	"github.com/kallestad/driftmark/internal/models"
)

// Store combines the vault and the state database into the local file
// cache. Content lives on disk as plain markdown; everything else lives
// in SQLite.
type Store struct {
	vault *Vault
	db    *StateDB
}

// NewStore creates a Store over an existing vault and state database.
func NewStore(vault *Vault, db *StateDB) *Store {
	return &Store{vault: vault, db: db}
}

// Vault returns the underlying vault, for watcher wiring.
func (s *Store) Vault() *Vault { return s.vault }

// DB returns the underlying state database.
func (s *Store) DB() *StateDB { return s.db }

// LoadFiles returns every journal file, most recently updated first.
// Metadata rows whose vault file has vanished are skipped; Rescan
// removes them for good.
func (s *Store) LoadFiles() ([]models.JournalFile, error) {
	metas, err := s.db.ListMeta()
	if err != nil {
		return nil, err
	}
	out := make([]models.JournalFile, 0, len(metas))
	for _, m := range metas {
		data, err := s.vault.Read(m.Name)
		if err != nil {
			continue
		}
		out = append(out, fileFromMeta(m, data))
	}
	return out, nil
}

// Get returns a journal file by id.
func (s *Store) Get(id string) (*models.JournalFile, error) {
	m, err := s.db.GetMeta(id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.ErrNotFound
	}
	data, err := s.vault.Read(m.Name)
	if err != nil {
		return nil, apperr.ErrNotFound
	}
	f := fileFromMeta(*m, data)
	return &f, nil
}

// GetByName returns a journal file by its name.
func (s *Store) GetByName(name string) (*models.JournalFile, error) {
	m, err := s.db.GetMetaByName(name)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.ErrNotFound
	}
	data, err := s.vault.Read(m.Name)
	if err != nil {
		return nil, apperr.ErrNotFound
	}
	f := fileFromMeta(*m, data)
	return &f, nil
}

// Create writes a new journal file. The name gets the markdown extension
// when missing; a taken name fails with ErrAlreadyExists.
func (s *Store) Create(name, content string) (*models.JournalFile, error) {
	name = models.EnsureMarkdownName(name)
	if existing, err := s.db.GetMetaByName(name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("create %s: %w", name, apperr.ErrAlreadyExists)
	}

	now := time.Now()
	f := models.JournalFile{
		ID:        models.NewFileID(),
		Name:      name,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.put(f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Save persists updated content and refreshes UpdatedAt.
func (s *Store) Save(f models.JournalFile) (*models.JournalFile, error) {
	f.UpdatedAt = time.Now()
	if err := s.put(f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Put writes a file exactly as given, without touching its timestamps.
// Used when materializing pulled or reconciled remote state.
func (s *Store) Put(f models.JournalFile) error {
	return s.put(f)
}

func (s *Store) put(f models.JournalFile) error {
	data := []byte(f.Content)
	if err := s.vault.Write(f.Name, data); err != nil {
		return err
	}
	return s.db.UpsertMeta(FileMeta{
		ID:             f.ID,
		Name:           f.Name,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
		RemoteRevision: f.RemoteRevision,
		LastSyncedAt:   f.LastSyncedAt,
		Checksum:       checksum(data),
	})
}

// UpdateSyncStamp records a successful sync for a file: revision and
// sync time only, never content.
func (s *Store) UpdateSyncStamp(id, revision string, syncedAt time.Time) error {
	return s.db.UpdateSyncStamp(id, revision, syncedAt)
}

// Delete removes a file from vault and state.
func (s *Store) Delete(id string) error {
	m, err := s.db.GetMeta(id)
	if err != nil {
		return err
	}
	if m == nil {
		return apperr.ErrNotFound
	}
	if s.vault.Exists(m.Name) {
		if err := s.vault.Delete(m.Name); err != nil {
			return err
		}
	}
	return s.db.DeleteMeta(id)
}

// Rename changes a file's name. Across the remote boundary this breaks
// the link to prior remote history: the entry will reappear there as a
// delete+create on the next sync.
func (s *Store) Rename(id, newName string) (*models.JournalFile, error) {
	newName = models.EnsureMarkdownName(newName)
	m, err := s.db.GetMeta(id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.ErrNotFound
	}
	if taken, err := s.db.GetMetaByName(newName); err != nil {
		return nil, err
	} else if taken != nil && taken.ID != id {
		return nil, fmt.Errorf("rename to %s: %w", newName, apperr.ErrAlreadyExists)
	}
	if err := s.vault.Rename(m.Name, newName); err != nil {
		return nil, err
	}
	m.Name = newName
	m.UpdatedAt = time.Now()
	m.RemoteRevision = ""
	m.LastSyncedAt = nil
	if err := s.db.UpsertMeta(*m); err != nil {
		return nil, err
	}
	return s.Get(id)
}

// ReplaceAll clears the cache and installs the given file set. Used when
// connecting or switching repositories, so no cross-repository content
// survives.
func (s *Store) ReplaceAll(files []models.JournalFile) error {
	if err := s.ClearFiles(); err != nil {
		return err
	}
	for _, f := range files {
		if err := s.put(f); err != nil {
			return err
		}
	}
	return nil
}

// ClearFiles removes every vault entry and metadata row. Settings,
// including the stored token, are untouched.
func (s *Store) ClearFiles() error {
	entries, err := s.vault.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.vault.Delete(e.Name); err != nil {
			return err
		}
	}
	return s.db.ClearFiles()
}

// Change is one difference found by Rescan.
type Change struct {
	Kind string // "created", "updated" or "deleted"
	Name string
}

// Rescan reconciles the state database with the vault:
//   - files new on disk get fresh metadata (created-at from a date-prefixed
//     name when present, else the file's mod time)
//   - files whose bytes changed on disk get their checksum and UpdatedAt
//     refreshed; sync stamps are kept so the next reconcile sees the edit
//   - metadata whose file vanished is dropped
func (s *Store) Rescan(logger *slog.Logger) ([]Change, error) {
	entries, err := s.vault.List()
	if err != nil {
		return nil, err
	}
	checksums, err := s.db.AllChecksums()
	if err != nil {
		return nil, err
	}

	var changes []Change
	disk := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		disk[e.Name] = struct{}{}

		known, tracked := checksums[e.Name]
		if tracked && known == e.Checksum {
			continue
		}

		if !tracked {
			if err := s.db.UpsertMeta(FileMeta{
				ID:        models.NewFileID(),
				Name:      e.Name,
				CreatedAt: models.CreatedAtFromName(e.Name, e.ModTime),
				UpdatedAt: e.ModTime,
				Checksum:  e.Checksum,
			}); err != nil {
				logger.Warn("rescan: track failed", slog.String("name", e.Name), slog.String("error", err.Error()))
				continue
			}
			changes = append(changes, Change{Kind: "created", Name: e.Name})
			continue
		}

		m, err := s.db.GetMetaByName(e.Name)
		if err != nil || m == nil {
			continue
		}
		m.Checksum = e.Checksum
		m.UpdatedAt = e.ModTime
		if err := s.db.UpsertMeta(*m); err != nil {
			logger.Warn("rescan: update failed", slog.String("name", e.Name), slog.String("error", err.Error()))
			continue
		}
		changes = append(changes, Change{Kind: "updated", Name: e.Name})
	}

	// Drop metadata for files removed from disk.
	for name := range checksums {
		if _, ok := disk[name]; ok {
			continue
		}
		m, err := s.db.GetMetaByName(name)
		if err != nil || m == nil {
			continue
		}
		if err := s.db.DeleteMeta(m.ID); err != nil {
			logger.Warn("rescan: untrack failed", slog.String("name", name), slog.String("error", err.Error()))
			continue
		}
		changes = append(changes, Change{Kind: "deleted", Name: name})
	}

	return changes, nil
}

func fileFromMeta(m FileMeta, data []byte) models.JournalFile {
	return models.JournalFile{
		ID:             m.ID,
		Name:           m.Name,
		Content:        string(data),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		RemoteRevision: m.RemoteRevision,
		LastSyncedAt:   m.LastSyncedAt,
	}
}
