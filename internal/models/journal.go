// Package models defines the domain types for Driftmark.
package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MarkdownExt is the fixed extension for journal entries.
const MarkdownExt = ".md"

// DraftIDPrefix marks in-memory draft files that have not been
// confirmed into any backing store yet.
const DraftIDPrefix = "draft-"

// JournalFile represents a single journal entry.
//
// Name is the cross-store join key: local and remote copies of the same
// entry are matched by Name, never by ID. IDs are local session artifacts
// (a UUID for locally created files, a name-derived slug for pulled ones).
type JournalFile struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	RemoteRevision string     `json:"remote_revision,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
}

// IsDraft reports whether the file is an unconfirmed draft.
func (f *JournalFile) IsDraft() bool {
	return strings.HasPrefix(f.ID, DraftIDPrefix)
}

// NewFileID returns a fresh id for a locally created file.
func NewFileID() string {
	return uuid.NewString()
}

// NewDraftID returns a fresh draft id.
func NewDraftID() string {
	return DraftIDPrefix + uuid.NewString()
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// IDFromName derives a stable id from a remote file name, so repeated
// pulls of the same entry produce the same id.
func IDFromName(name string) string {
	return strings.Trim(strings.ToLower(nonAlnum.ReplaceAllString(name, "-")), "-")
}

// EnsureMarkdownName appends the markdown extension when missing.
func EnsureMarkdownName(name string) string {
	if strings.HasSuffix(name, MarkdownExt) {
		return name
	}
	return name + MarkdownExt
}

var datePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)

// CreatedAtFromName parses a YYYY-MM-DD prefix from a file name. Remote
// entries carry no creation timestamp, so the name prefix is the best
// available approximation; fallback is the caller-supplied now.
func CreatedAtFromName(name string, now time.Time) time.Time {
	m := datePrefix.FindStringSubmatch(name)
	if m == nil {
		return now
	}
	t, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return now
	}
	return t
}

// Repository is the subset of remote repository metadata the app uses.
type Repository struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Owner       string    `json:"owner"`
	Private     bool      `json:"private"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ConnectionConfig identifies the single active remote repository.
type ConnectionConfig struct {
	Token string `json:"token"`
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// RepositoryType classifies what a repository appears to be used for.
type RepositoryType string

// Repository classification outcomes.
const (
	RepoJournalAppropriate RepositoryType = "journal-appropriate"
	RepoDevelopment        RepositoryType = "development"
	RepoUnknown            RepositoryType = "unknown"
)

// AnalysisIndicators are the raw signals behind a classification.
type AnalysisIndicators struct {
	HasEntriesFolder     bool     `json:"has_entries_folder"`
	FileCount            int      `json:"file_count"`
	HasDevelopmentFiles  bool     `json:"has_development_files"`
	DevelopmentFileTypes []string `json:"development_file_types"`
	HasJournalKeywords   bool     `json:"has_journal_keywords"`
	ContributorCount     int      `json:"contributor_count"`
}

// RepositoryAnalysis is the classifier output. Advisory only: it warns
// before journal content lands in a codebase-looking repository, it
// never blocks a connect.
type RepositoryAnalysis struct {
	Type           RepositoryType     `json:"type"`
	Confidence     float64            `json:"confidence"`
	Indicators     AnalysisIndicators `json:"indicators"`
	Recommendation string             `json:"recommendation"`
}

// SyncStatus is the user-visible sync state.
type SyncStatus string

// Sync status values.
const (
	SyncIdle     SyncStatus = "idle"
	SyncSyncing  SyncStatus = "syncing"
	SyncSynced   SyncStatus = "synced"
	SyncError    SyncStatus = "error"
	SyncConflict SyncStatus = "conflict"
)

// ExportVersion identifies the export document format.
const ExportVersion = "1.0"

// ExportedFile is one entry in an export document.
type ExportedFile struct {
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Export is the full-journal export document.
type Export struct {
	Files      []ExportedFile `json:"files"`
	ExportedAt time.Time      `json:"exportedAt"`
	Version    string         `json:"version"`
}
