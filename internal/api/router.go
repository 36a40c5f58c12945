package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kallestad/driftmark/internal/journal"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *journal.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Files CRUD.
	r.Get("/files", h.ListFiles)
	r.Post("/files", h.CreateFile)
	r.Get("/files/{id}", h.GetFile)
	r.Put("/files/{id}", h.UpdateFile)
	r.Delete("/files/{id}", h.DeleteFile)
	r.Post("/files/{id}/select", h.SelectFile)

	// Drafts.
	r.Post("/drafts", h.CreateDraft)
	r.Post("/drafts/{id}/confirm", h.ConfirmDraft)
	r.Delete("/drafts/{id}", h.CancelDraft)

	// Connection lifecycle.
	r.Put("/connection", h.Connect)
	r.Delete("/connection", h.Disconnect)
	r.Post("/connection/switch", h.SwitchRepository)

	// Credential token.
	r.Put("/token", h.StoreToken)
	r.Get("/token", h.TokenStatus)
	r.Delete("/token", h.ClearToken)
	r.Post("/token/validate", h.ValidateToken)

	// Repository management and classification.
	r.Get("/repositories", h.ListRepositories)
	r.Post("/repositories", h.CreateRepository)
	r.Get("/repositories/{owner}/{repo}/analysis", h.AnalyzeRepository)

	// Sync.
	r.Post("/sync", h.Sync)
	r.Post("/sync/resolve", h.Resolve)
	r.Get("/status", h.Status)

	// Data portability.
	r.Get("/export", h.Export)
	r.Delete("/data", h.ClearData)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
