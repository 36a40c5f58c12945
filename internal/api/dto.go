package api

import (
	"github.com/kallestad/driftmark/internal/journal"
	"github.com/kallestad/driftmark/internal/models"
)

// CreateFileRequest is the request body for creating an entry.
type CreateFileRequest struct {
	Name    string `json:"name" example:"2026-08-31-morning.md" validate:"required"`
	Content string `json:"content" example:"# Morning pages"`
}

// UpdateFileRequest is the request body for saving entry content.
type UpdateFileRequest struct {
	Content string `json:"content" example:"# Updated content" validate:"required"`
}

// ConfirmDraftRequest names a draft so it can be promoted to an entry.
type ConfirmDraftRequest struct {
	Name string `json:"name" example:"morning.md" validate:"required"`
}

// FileListResponse wraps entry listings.
type FileListResponse struct {
	Files []models.JournalFile `json:"files" validate:"required"`
	Total int                  `json:"total" example:"42" validate:"required"`
}

// ConnectRequest is the request body for connecting to a repository.
type ConnectRequest struct {
	Token   string `json:"token" validate:"required"`
	Owner   string `json:"owner" example:"octocat" validate:"required"`
	Repo    string `json:"repo" example:"my-journal" validate:"required"`
	Migrate bool   `json:"migrate" example:"false"`
}

// SwitchRequest is the request body for switching repositories.
type SwitchRequest struct {
	Owner string `json:"owner" example:"octocat" validate:"required"`
	Repo  string `json:"repo" example:"other-journal" validate:"required"`
}

// ConnectResponse reports the outcome of a connect or switch.
type ConnectResponse struct {
	Repository *models.Repository   `json:"repository,omitempty"`
	Conflicts  []models.JournalFile `json:"conflicts,omitempty"`
}

// TokenRequest carries a credential token.
type TokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// TokenStatusResponse reports whether a token is stored.
type TokenStatusResponse struct {
	Stored bool `json:"stored" validate:"required"`
}

// TokenValidationResponse reports a credential check.
type TokenValidationResponse struct {
	Valid bool `json:"valid" validate:"required"`
}

// RepositoryListResponse wraps repository listings.
type RepositoryListResponse struct {
	Repositories []models.Repository `json:"repositories" validate:"required"`
}

// CreateRepositoryRequest is the request body for creating a repository.
type CreateRepositoryRequest struct {
	Name string `json:"name" example:"my-journal" validate:"required"`
}

// ResolutionItem is one chosen version for a conflicted file.
type ResolutionItem struct {
	Name    string `json:"name" example:"monday.md" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// ResolveRequest is the request body for conflict resolution.
type ResolveRequest struct {
	Resolutions []ResolutionItem `json:"resolutions" validate:"required"`
}

// SyncResponse reports a completed sync pass.
type SyncResponse struct {
	Conflicts []models.JournalFile `json:"conflicts,omitempty"`
	Synced    []string             `json:"synced"`
	Failed    []string             `json:"failed"`
	Skipped   []string             `json:"skipped"`
}

// StatusResponse is the observable service state.
type StatusResponse = journal.Status
