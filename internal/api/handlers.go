package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kallestad/driftmark/internal/apperr"
	"github.com/kallestad/driftmark/internal/journal"
)

// Handler holds API route handlers.
type Handler struct {
	svc *journal.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *journal.Service) *Handler {
	return &Handler{svc: svc}
}

// writeServiceErr maps domain errors to HTTP status codes.
func writeServiceErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrAuth):
		writeJSON(w, http.StatusUnauthorized, errorBody("authentication failed"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, apperr.ErrRepoExists):
		writeJSON(w, http.StatusConflict, errorBody("repository already exists"))
	case errors.Is(err, apperr.ErrRevisionConflict):
		writeJSON(w, http.StatusConflict, errorBody("remote revision conflict"))
	case errors.Is(err, apperr.ErrBusy):
		writeJSON(w, http.StatusConflict, errorBody("a sync is already running"))
	case errors.Is(err, apperr.ErrNotConnected):
		writeJSON(w, http.StatusConflict, errorBody("not connected to a repository"))
	case errors.Is(err, apperr.ErrNetwork):
		writeJSON(w, http.StatusBadGateway, errorBody("remote service unreachable"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListFiles handles GET /api/files.
//
//	@Summary		List journal entries, drafts first, newest first
//	@Tags			files
//	@Produce		json
//	@Success		200	{object}	FileListResponse
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files := h.svc.ListFiles()
	writeJSON(w, http.StatusOK, FileListResponse{Files: files, Total: len(files)})
}

// GetFile handles GET /api/files/{id}.
//
//	@Summary		Get a single entry or draft by id
//	@Tags			files
//	@Produce		json
//	@Param			id	path		string	true	"File id"
//	@Success		200	{object}	models.JournalFile
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{id} [get]
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.GetFile(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceErr(w, "get file", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// CreateFile handles POST /api/files.
//
//	@Summary		Create a named entry
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateFileRequest	true	"Entry to create"
//	@Success		201		{object}	models.JournalFile
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [post]
func (h *Handler) CreateFile(w http.ResponseWriter, r *http.Request) {
	var req CreateFileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	f, err := h.svc.CreateFile(r.Context(), req.Name, req.Content)
	if err != nil {
		writeServiceErr(w, "create file", err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// UpdateFile handles PUT /api/files/{id}.
//
//	@Summary		Save entry content
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"File id"
//	@Param			body	body		UpdateFileRequest	true	"Updated content"
//	@Success		200		{object}	models.JournalFile
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{id} [put]
func (h *Handler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	var req UpdateFileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	f, err := h.svc.SaveFile(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeServiceErr(w, "save file", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// DeleteFile handles DELETE /api/files/{id}.
//
//	@Summary		Delete an entry from the authoritative store
//	@Tags			files
//	@Param			id	path	string	true	"File id"
//	@Success		204	"File deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{id} [delete]
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteFile(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceErr(w, "delete file", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectFile handles POST /api/files/{id}/select.
//
//	@Summary		Mark an entry as the currently open one
//	@Tags			files
//	@Param			id	path	string	true	"File id"
//	@Success		204	"File selected"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{id}/select [post]
func (h *Handler) SelectFile(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SelectFile(chi.URLParam(r, "id")); err != nil {
		writeServiceErr(w, "select file", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateDraft handles POST /api/drafts.
//
//	@Summary		Start an unnamed in-memory draft
//	@Tags			drafts
//	@Produce		json
//	@Success		201	{object}	models.JournalFile
//	@Security		BearerAuth
//	@Router			/drafts [post]
func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.svc.CreateDraft())
}

// ConfirmDraft handles POST /api/drafts/{id}/confirm.
//
//	@Summary		Name a draft and promote it to a real entry
//	@Tags			drafts
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Draft id"
//	@Param			body	body		ConfirmDraftRequest	true	"Entry name"
//	@Success		201		{object}	models.JournalFile
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/drafts/{id}/confirm [post]
func (h *Handler) ConfirmDraft(w http.ResponseWriter, r *http.Request) {
	var req ConfirmDraftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	f, err := h.svc.ConfirmDraft(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeServiceErr(w, "confirm draft", err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// CancelDraft handles DELETE /api/drafts/{id}.
//
//	@Summary		Discard a draft
//	@Tags			drafts
//	@Param			id	path	string	true	"Draft id"
//	@Success		204	"Draft discarded"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/drafts/{id} [delete]
func (h *Handler) CancelDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CancelDraft(chi.URLParam(r, "id")); err != nil {
		writeServiceErr(w, "cancel draft", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
