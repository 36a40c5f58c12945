package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kallestad/driftmark/internal/models"
)

// Connect handles PUT /api/connection.
//
//	@Summary		Connect the journal to a repository
//	@Tags			connection
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ConnectRequest	true	"Connection settings"
//	@Success		200		{object}	ConnectResponse
//	@Failure		401		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/connection [put]
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" || req.Owner == "" || req.Repo == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("token, owner and repo are required"))
		return
	}
	cfg := models.ConnectionConfig{Token: req.Token, Owner: req.Owner, Repo: req.Repo}
	res, err := h.svc.Connect(r.Context(), cfg, req.Migrate)
	if err != nil {
		writeServiceErr(w, "connect", err)
		return
	}
	writeJSON(w, http.StatusOK, ConnectResponse{Repository: res.Repository, Conflicts: res.Conflicts})
}

// Disconnect handles DELETE /api/connection.
//
//	@Summary		Disconnect from the repository, keeping local copies
//	@Tags			connection
//	@Param			forget_token	query	bool	false	"Also forget the stored token"
//	@Success		204	"Disconnected"
//	@Security		BearerAuth
//	@Router			/connection [delete]
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	forget := r.URL.Query().Get("forget_token") == "true"
	if err := h.svc.Disconnect(forget); err != nil {
		writeServiceErr(w, "disconnect", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SwitchRepository handles POST /api/connection/switch.
//
//	@Summary		Reconnect to a different repository with the stored token
//	@Tags			connection
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SwitchRequest	true	"Target repository"
//	@Success		200		{object}	ConnectResponse
//	@Failure		401		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/connection/switch [post]
func (h *Handler) SwitchRepository(w http.ResponseWriter, r *http.Request) {
	var req SwitchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Owner == "" || req.Repo == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("owner and repo are required"))
		return
	}
	res, err := h.svc.SwitchRepository(r.Context(), req.Owner, req.Repo)
	if err != nil {
		writeServiceErr(w, "switch repository", err)
		return
	}
	writeJSON(w, http.StatusOK, ConnectResponse{Repository: res.Repository, Conflicts: res.Conflicts})
}

// StoreToken handles PUT /api/token.
//
//	@Summary		Store a credential token without connecting
//	@Tags			token
//	@Accept			json
//	@Param			body	body	TokenRequest	true	"Token"
//	@Success		204	"Token stored"
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/token [put]
func (h *Handler) StoreToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.StoreToken(req.Token); err != nil {
		writeServiceErr(w, "store token", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TokenStatus handles GET /api/token.
//
//	@Summary		Report whether a token is stored; never returns the token itself
//	@Tags			token
//	@Produce		json
//	@Success		200	{object}	TokenStatusResponse
//	@Security		BearerAuth
//	@Router			/token [get]
func (h *Handler) TokenStatus(w http.ResponseWriter, r *http.Request) {
	token, err := h.svc.StoredToken()
	if err != nil {
		writeServiceErr(w, "token status", err)
		return
	}
	writeJSON(w, http.StatusOK, TokenStatusResponse{Stored: token != ""})
}

// ClearToken handles DELETE /api/token.
//
//	@Summary		Forget the stored token
//	@Tags			token
//	@Success		204	"Token cleared"
//	@Security		BearerAuth
//	@Router			/token [delete]
func (h *Handler) ClearToken(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearStoredToken(); err != nil {
		writeServiceErr(w, "clear token", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ValidateToken handles POST /api/token/validate.
//
//	@Summary		Check a credential against the remote service
//	@Tags			token
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TokenRequest	true	"Token"
//	@Success		200		{object}	TokenValidationResponse
//	@Security		BearerAuth
//	@Router			/token/validate [post]
func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("token is required"))
		return
	}
	valid, err := h.svc.ValidateToken(r.Context(), req.Token)
	if err != nil {
		writeServiceErr(w, "validate token", err)
		return
	}
	writeJSON(w, http.StatusOK, TokenValidationResponse{Valid: valid})
}

// storedToken loads the persisted token, writing a 401 when none exists.
func (h *Handler) storedToken(w http.ResponseWriter) (string, bool) {
	token, err := h.svc.StoredToken()
	if err != nil {
		writeServiceErr(w, "load token", err)
		return "", false
	}
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody("no stored token"))
		return "", false
	}
	return token, true
}

// ListRepositories handles GET /api/repositories.
//
//	@Summary		List repositories reachable with the stored token
//	@Tags			repositories
//	@Produce		json
//	@Success		200	{object}	RepositoryListResponse
//	@Failure		401	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repositories [get]
func (h *Handler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	token, ok := h.storedToken(w)
	if !ok {
		return
	}
	repos, err := h.svc.ListRepositories(r.Context(), token)
	if err != nil {
		writeServiceErr(w, "list repositories", err)
		return
	}
	writeJSON(w, http.StatusOK, RepositoryListResponse{Repositories: repos})
}

// CreateRepository handles POST /api/repositories.
//
//	@Summary		Create a fresh private journal repository
//	@Tags			repositories
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateRepositoryRequest	true	"Repository name"
//	@Success		201		{object}	models.Repository
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repositories [post]
func (h *Handler) CreateRepository(w http.ResponseWriter, r *http.Request) {
	var req CreateRepositoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	token, ok := h.storedToken(w)
	if !ok {
		return
	}
	repo, err := h.svc.CreateRepository(r.Context(), token, req.Name)
	if err != nil {
		writeServiceErr(w, "create repository", err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

// AnalyzeRepository handles GET /api/repositories/{owner}/{repo}/analysis.
//
//	@Summary		Classify a candidate repository before connecting
//	@Tags			repositories
//	@Produce		json
//	@Param			owner	path		string	true	"Repository owner"
//	@Param			repo	path		string	true	"Repository name"
//	@Success		200		{object}	models.RepositoryAnalysis
//	@Failure		401		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repositories/{owner}/{repo}/analysis [get]
func (h *Handler) AnalyzeRepository(w http.ResponseWriter, r *http.Request) {
	token, ok := h.storedToken(w)
	if !ok {
		return
	}
	analysis := h.svc.AnalyzeRepository(r.Context(), token,
		chi.URLParam(r, "owner"), chi.URLParam(r, "repo"))
	writeJSON(w, http.StatusOK, analysis)
}
