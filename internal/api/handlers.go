package api

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nocel/internal/access"
	"github.com/starford/nocel/internal/apperr"
	"github.com/starford/nocel/internal/models"
	"github.com/starford/nocel/internal/sessionservice"
	"github.com/starford/nocel/internal/store"
	"github.com/starford/nocel/internal/thumbs"
)

// Form modes of the new-session form.
const (
	modeManual = "manual"
	modeUpload = "upload"
)

// maxFormMemory is the part of a multipart form kept in memory; the rest
// spills to temporary files.
const maxFormMemory = 32 << 20

// Handler holds route handlers.
type Handler struct {
	svc        *sessionservice.Service
	db         *store.DB
	grants     *access.Grants
	thumbs     *thumbs.Generator
	sweeper    *Sweeper
	pageSize   int
	maxRequest int64
}

// NewHandler creates a new Handler.
func NewHandler(cfg Config) *Handler {
	size := cfg.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Handler{
		svc:        cfg.Service,
		db:         cfg.DB,
		grants:     cfg.Grants,
		thumbs:     cfg.Thumbs,
		sweeper:    cfg.Sweeper,
		pageSize:   size,
		maxRequest: cfg.MaxRequestBytes,
	}
}

func sessionURL(sess *models.Session) string {
	return "/session/" + string(sess.Type) + "/" + url.PathEscape(sess.Name)
}

func fileURL(sess *models.Session, f *models.File) string {
	return "/files/" + string(sess.Type) + "/" + url.PathEscape(sess.Name) + "/" + url.PathEscape(f.Filename)
}

func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// pathID parses the {id} URL parameter. A malformed id names nothing.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.ErrNotFound
	}
	return id, nil
}

func (h *Handler) limitBody(w http.ResponseWriter, r *http.Request) {
	if h.maxRequest > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxRequest)
	}
}

// parseForm parses url-encoded and multipart bodies alike.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxFormMemory)
	if err == nil || errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	return badBody(err)
}

func badBody(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return err
	}
	return apperr.Invalid("malformed request body: %v", err)
}

// Ready handles GET /health/ready.
//
//	@Summary		Readiness probe
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	errResponse
//	@Router			/health/ready [get]
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		slog.Error("readiness check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, errorBody("database unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Index handles GET /.
//
//	@Summary		List public sessions
//	@Tags			sessions
//	@Produce		json,html
//	@Param			q		query		string	false	"Search text"
//	@Param			page	query		int		false	"1-based page"
//	@Success		200		{object}	SessionListResponse
//	@Router			/ [get]
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))

	p, err := h.svc.PagePublic(r.Context(), q.Get("q"), page, h.pageSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, p)
		return
	}
	renderPage(w, http.StatusOK, "index.html", indexPage{Page: p})
}

// AccessPrivate handles POST /access-private.
//
//	@Summary		Open a private session with its combined code
//	@Tags			sessions
//	@Accept			x-www-form-urlencoded
//	@Produce		json,html
//	@Param			private_code	formData	string	true	"Session name followed by the 4-digit code"
//	@Success		200				{object}	SessionCreatedResponse
//	@Success		303
//	@Failure		400				{object}	errResponse
//	@Failure		404				{object}	errResponse
//	@Router			/access-private [post]
func (h *Handler) AccessPrivate(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.VerifyPrivateAccess(r.Context(), r.FormValue("private_code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.grants.Grant(w, r, sess.Name); err != nil {
		h.fail(w, r, err)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, SessionCreatedResponse{
			Name: sess.Name, Type: string(sess.Type), URL: sessionURL(sess),
		})
		return
	}
	redirect(w, r, sessionURL(sess))
}

// NewSessionForm handles GET /new/{type}.
func (h *Handler) NewSessionForm(w http.ResponseWriter, r *http.Request) {
	typ, err := models.ParseSessionType(chi.URLParam(r, "type"))
	if err != nil {
		h.fail(w, r, apperr.ErrNotFound)
		return
	}
	renderPage(w, http.StatusOK, "new.html", newPage{Type: typ, Private: typ == models.SessionPrivate})
}

// CreateSession handles POST /new/{type}.
//
//	@Summary		Create a session with a first note or file
//	@Tags			sessions
//	@Accept			multipart/form-data
//	@Produce		json,html
//	@Param			type			path		string	true	"Session type"	Enums(public, private)
//	@Param			session_name	formData	string	true	"Session name"
//	@Param			mode			formData	string	false	"First entry"	Enums(manual, upload)
//	@Param			content			formData	string	false	"Note content (manual mode)"
//	@Param			file			formData	file	false	"File (upload mode)"
//	@Success		201				{object}	SessionCreatedResponse
//	@Success		303
//	@Failure		400				{object}	errResponse
//	@Failure		409				{object}	errResponse
//	@Failure		413				{object}	quotaResponse
//	@Router			/new/{type} [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	typ, err := models.ParseSessionType(chi.URLParam(r, "type"))
	if err != nil {
		h.fail(w, r, apperr.ErrNotFound)
		return
	}
	if err := h.svc.Admit(ctx, nil, r.ContentLength); err != nil {
		h.fail(w, r, err)
		return
	}
	h.limitBody(w, r)
	if err := parseForm(r); err != nil {
		h.fail(w, r, err)
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	name := strings.TrimSpace(r.FormValue("session_name"))
	if name == "" {
		h.fail(w, r, apperr.Invalid("session name is required"))
		return
	}
	mode := r.FormValue("mode")
	if mode == "" {
		mode = modeManual
	}
	var upload *multipart.FileHeader
	switch mode {
	case modeManual:
	case modeUpload:
		if r.MultipartForm != nil && len(r.MultipartForm.File["file"]) > 0 {
			upload = r.MultipartForm.File["file"][0]
		}
		if upload == nil || upload.Filename == "" {
			h.fail(w, r, apperr.Invalid("no file selected"))
			return
		}
	default:
		h.fail(w, r, apperr.Invalid("unknown mode %q", mode))
		return
	}

	sess, err := h.svc.Create(ctx, name, typ)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if upload != nil {
		err = h.storeFormFile(r, sess, upload)
	} else {
		_, err = h.svc.AddNote(ctx, sess, r.FormValue("content"))
	}
	if err != nil {
		// A session whose first item failed is removed so the name stays free.
		if derr := h.svc.Delete(context.WithoutCancel(ctx), sess); derr != nil {
			slog.Warn("roll back new session", slog.String("session", sess.StoragePrefix()), slog.String("error", derr.Error()))
		}
		h.fail(w, r, err)
		return
	}

	if sess.IsPrivate() {
		if err := h.grants.Grant(w, r, sess.Name); err != nil {
			slog.Warn("grant private session", slog.String("session", sess.Name), slog.String("error", err.Error()))
		}
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusCreated, SessionCreatedResponse{
			Name:       sess.Name,
			Type:       string(sess.Type),
			AccessCode: sess.AccessCode(),
			URL:        sessionURL(sess),
		})
		return
	}
	target := sessionURL(sess)
	if sess.IsPrivate() {
		target += "?created=1"
	}
	redirect(w, r, target)
}

func (h *Handler) storeFormFile(r *http.Request, sess *models.Session, fh *multipart.FileHeader) error {
	f, err := fh.Open()
	if err != nil {
		return badBody(err)
	}
	defer f.Close()
	_, _, err = h.svc.StoreFile(r.Context(), sess, sessionservice.Upload{Name: fh.Filename, Body: f, Size: fh.Size})
	return err
}

// ShowSession handles GET /session/{type}/{name}.
//
//	@Summary		Show a session with its notes and files
//	@Tags			sessions
//	@Produce		json,html
//	@Param			type	path		string	true	"Session type"	Enums(public, private)
//	@Param			name	path		string	true	"Session name"
//	@Success		200		{object}	SessionResponse
//	@Failure		404		{object}	errResponse
//	@Router			/session/{type}/{name} [get]
func (h *Handler) ShowSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(r)

	items, err := h.svc.Timeline(ctx, sess)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	usage, err := h.svc.Usage(ctx, sess)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var expires *time.Time
	if h.sweeper != nil {
		t := sess.CreatedAt.Add(h.sweeper.TTL())
		expires = &t
	}

	if wantsJSON(r) {
		if items == nil {
			items = []models.Item{}
		}
		writeJSON(w, http.StatusOK, SessionResponse{
			Name:       sess.Name,
			Type:       string(sess.Type),
			AccessCode: sess.AccessCode(),
			CreatedAt:  sess.CreatedAt,
			ExpiresAt:  expires,
			Items:      items,
			Usage:      usage,
		})
		return
	}
	renderPage(w, http.StatusOK, "session.html", sessionPage{
		Session:    sess,
		URL:        sessionURL(sess),
		AccessCode: sess.AccessCode(),
		Created:    r.URL.Query().Get("created") != "",
		ExpiresAt:  expires,
		Items:      items,
		Usage:      usage,
	})
}

// AddNote handles POST /session/{type}/{name}/note/add.
//
//	@Summary		Add a note
//	@Tags			notes
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			type	path		string	true	"Session type"	Enums(public, private)
//	@Param			name	path		string	true	"Session name"
//	@Param			content	formData	string	true	"Note text"
//	@Success		201		{object}	NoteResponse
//	@Success		303
//	@Failure		404		{object}	errResponse
//	@Router			/session/{type}/{name}/note/add [post]
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	note, err := h.svc.AddNote(r.Context(), sess, r.FormValue("content"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if wantsJSON(r) {
		status := http.StatusCreated
		if note == nil {
			status = http.StatusOK
		}
		writeJSON(w, status, NoteResponse{Note: note})
		return
	}
	redirect(w, r, sessionURL(sess))
}

// EditNote handles POST /session/{type}/{name}/note/{id}/edit.
//
//	@Summary		Edit a note
//	@Tags			notes
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			id		path		int		true	"Note id"
//	@Param			content	formData	string	true	"New text"
//	@Success		200		{object}	NoteResponse
//	@Success		303
//	@Failure		404		{object}	errResponse
//	@Router			/session/{type}/{name}/note/{id}/edit [post]
func (h *Handler) EditNote(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	note, err := h.svc.UpdateNote(r.Context(), sess, id, r.FormValue("content"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, NoteResponse{Note: note})
		return
	}
	redirect(w, r, sessionURL(sess))
}

// DeleteNote handles POST /session/{type}/{name}/note/{id}/delete.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id	path	int	true	"Note id"
//	@Success		204
//	@Success		303
//	@Failure		404	{object}	errResponse
//	@Router			/session/{type}/{name}/note/{id}/delete [post]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.DeleteNote(r.Context(), sess, id); err != nil {
		h.fail(w, r, err)
		return
	}
	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	redirect(w, r, sessionURL(sess))
}

// Storage handles GET /session/{type}/{name}/storage.
//
//	@Summary		Storage usage of a session
//	@Tags			files
//	@Produce		json
//	@Success		200	{object}	Usage
//	@Failure		404	{object}	errResponse
//	@Router			/session/{type}/{name}/storage [get]
func (h *Handler) Storage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.svc.Usage(r.Context(), sessionFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}
