package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nocel/internal/apperr"
	"github.com/starford/nocel/internal/models"
)

// AdminSweep handles POST /admin/sweep.
//
//	@Summary		Remove expired sessions now
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	SweepResponse
//	@Failure		400	{object}	errResponse
//	@Failure		401	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/sweep [post]
func (h *Handler) AdminSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("session expiry is disabled"))
		return
	}
	removed := h.sweeper.Sweep(r.Context())
	if removed == nil {
		removed = []models.Session{}
	}
	writeJSON(w, http.StatusOK, SweepResponse{Removed: len(removed), Sessions: removed})
}

// AdminDeleteSession handles DELETE /admin/sessions/{type}/{name}.
//
//	@Summary		Delete a session with its notes and files
//	@Tags			admin
//	@Param			type	path	string	true	"Session type"	Enums(public, private)
//	@Param			name	path	string	true	"Session name"
//	@Success		204
//	@Failure		401	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/sessions/{type}/{name} [delete]
func (h *Handler) AdminDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	typ, err := models.ParseSessionType(chi.URLParam(r, "type"))
	if err != nil {
		h.fail(w, r, apperr.ErrNotFound)
		return
	}
	sess, err := h.svc.Lookup(ctx, chi.URLParam(r, "name"), typ)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Delete(ctx, sess); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
