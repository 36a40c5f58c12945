package api

import (
	"net/http"

	"github.com/kallestad/driftmark/internal/gitsync"
	"github.com/kallestad/driftmark/internal/journal"
)

func syncResponse(res *gitsync.BulkResult) SyncResponse {
	out := SyncResponse{Synced: []string{}, Failed: []string{}, Skipped: []string{}}
	if res == nil {
		return out
	}
	for _, f := range res.Synced {
		out.Synced = append(out.Synced, f.Name)
	}
	for _, pf := range res.Failed {
		out.Failed = append(out.Failed, pf.File.Name)
	}
	out.Skipped = append(out.Skipped, res.Skipped...)
	return out
}

// Sync handles POST /api/sync.
//
//	@Summary		Run a full reconciliation with the remote repository
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ManualSync(r.Context())
	if err != nil {
		writeServiceErr(w, "sync", err)
		return
	}
	out := syncResponse(res.Push)
	out.Conflicts = res.Conflicts
	writeJSON(w, http.StatusOK, out)
}

// Resolve handles POST /api/sync/resolve.
//
//	@Summary		Resolve sync conflicts with chosen definitive versions
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ResolveRequest	true	"Resolutions"
//	@Success		200		{object}	SyncResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/resolve [post]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Resolutions) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("resolutions are required"))
		return
	}
	resolutions := make([]journal.Resolution, 0, len(req.Resolutions))
	for _, item := range req.Resolutions {
		resolutions = append(resolutions, journal.Resolution{Name: item.Name, Content: item.Content})
	}
	res, err := h.svc.ResolveWith(r.Context(), resolutions)
	if err != nil {
		writeServiceErr(w, "resolve conflicts", err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse(res))
}

// Status handles GET /api/status.
//
//	@Summary		Report connection and sync state
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// Export handles GET /api/export.
//
//	@Summary		Export all entries as a portable JSON document
//	@Tags			data
//	@Produce		json
//	@Success		200	{object}	models.Export
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Disposition", `attachment; filename="journal-export.json"`)
	writeJSON(w, http.StatusOK, h.svc.ExportAll())
}

// ClearData handles DELETE /api/data.
//
//	@Summary		Wipe all files, connection state and the stored token
//	@Tags			data
//	@Success		204	"All data cleared"
//	@Security		BearerAuth
//	@Router			/data [delete]
func (h *Handler) ClearData(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearAllData(); err != nil {
		writeServiceErr(w, "clear data", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
