package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nocel/internal/apperr"
	"github.com/starford/nocel/internal/checksum"
	"github.com/starford/nocel/internal/models"
	"github.com/starford/nocel/internal/sessionservice"
	"github.com/starford/nocel/internal/thumbs"
)

// Upload handles POST /session/{type}/{name}/upload.
// The "file" part is streamed into storage; it is never buffered whole.
//
//	@Summary		Upload a file
//	@Tags			files
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			type	path		string	true	"Session type"	Enums(public, private)
//	@Param			name	path		string	true	"Session name"
//	@Param			file	formData	file	true	"File to upload"
//	@Success		201		{object}	FileResponse
//	@Success		303
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		413		{object}	quotaResponse
//	@Router			/session/{type}/{name}/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(r)

	if err := h.svc.Admit(ctx, sess, r.ContentLength); err != nil {
		h.fail(w, r, err)
		return
	}
	h.limitBody(w, r)

	mr, err := r.MultipartReader()
	if err != nil {
		h.fail(w, r, apperr.Invalid("expected a multipart/form-data body"))
		return
	}

	var (
		stored *models.File
		usage  models.Usage
	)
	for stored == nil {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.fail(w, r, badBody(err))
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}
		stored, usage, err = h.svc.StoreFile(ctx, sess, sessionservice.Upload{
			Name: part.FileName(),
			Body: part,
			Size: -1,
		})
		part.Close()
		if err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if stored == nil {
		h.fail(w, r, apperr.Invalid("no file selected"))
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusCreated, FileResponse{File: stored, URL: fileURL(sess, stored), Usage: usage})
		return
	}
	redirect(w, r, sessionURL(sess))
}

// EditFileForm handles GET /session/{type}/{name}/file/{id}/edit.
//
//	@Summary		Read a text file for editing
//	@Tags			files
//	@Produce		json,html
//	@Param			id	path		int	true	"File id"
//	@Success		200	{object}	TextFileResponse
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Router			/session/{type}/{name}/file/{id}/edit [get]
func (h *Handler) EditFileForm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	text, err := h.svc.ReadText(r.Context(), sess, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(text.Checksum))
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, TextFileResponse{File: text.File, Content: text.Content, Checksum: text.Checksum})
		return
	}
	renderPage(w, http.StatusOK, "edit_file.html", editFilePage{SessionURL: sessionURL(sess), Text: text})
}

// EditFile handles POST /session/{type}/{name}/file/{id}/edit.
// The expected checksum comes from If-Match or, for HTML forms, the
// "checksum" field.
//
//	@Summary		Overwrite a text file
//	@Tags			files
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			id			path		int		true	"File id"
//	@Param			content		formData	string	true	"New content"
//	@Param			If-Match	header		string	false	"Checksum of the content being replaced"
//	@Success		200			{object}	FileResponse
//	@Success		303
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Failure		413			{object}	quotaResponse
//	@Router			/session/{type}/{name}/file/{id}/edit [post]
func (h *Handler) EditFile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.limitBody(w, r)
	if err := parseForm(r); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, ok := r.Form["content"]; !ok {
		h.fail(w, r, apperr.Invalid("content is required"))
		return
	}
	content := r.FormValue("content")
	ifMatch := r.Header.Get("If-Match")
	if ifMatch == "" {
		ifMatch = r.FormValue("checksum")
	}

	f, usage, err := h.svc.OverwriteText(r.Context(), sess, id, content, ifMatch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sum := checksum.Sum([]byte(content))
	w.Header().Set("ETag", strconv.Quote(sum))
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, FileResponse{File: f, URL: fileURL(sess, f), Checksum: sum, Usage: usage})
		return
	}
	redirect(w, r, sessionURL(sess))
}

// DeleteFile handles POST /session/{type}/{name}/file/{id}/delete.
//
//	@Summary		Delete a file
//	@Tags			files
//	@Param			id	path	int	true	"File id"
//	@Success		204
//	@Success		303
//	@Failure		404	{object}	errResponse
//	@Router			/session/{type}/{name}/file/{id}/delete [post]
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.RemoveFile(r.Context(), sess, id); err != nil {
		h.fail(w, r, err)
		return
	}
	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	redirect(w, r, sessionURL(sess))
}

// ServeFile handles GET /files/{type}/{name}/{filename}. Seekable blobs
// support Range requests; ?download=1 forces an attachment.
//
//	@Summary		Download or stream a file
//	@Tags			files
//	@Produce		octet-stream
//	@Param			type		path	string	true	"Session type"	Enums(public, private)
//	@Param			name		path	string	true	"Session name"
//	@Param			filename	path	string	true	"Stored file name"
//	@Param			download	query	string	false	"Force attachment"
//	@Success		200
//	@Success		206
//	@Failure		404	{object}	errResponse
//	@Router			/files/{type}/{name}/{filename} [get]
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	f, obj, err := h.svc.FetchFile(r.Context(), sessionFrom(r), chi.URLParam(r, "filename"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer obj.Close()

	disposition := "inline"
	if r.URL.Query().Get("download") != "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", f.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": f.Filename}))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if rs, ok := obj.ReadCloser.(io.ReadSeeker); ok {
		http.ServeContent(w, r, f.Filename, obj.ModTime, rs)
		return
	}
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	if _, err := io.Copy(w, obj); err != nil {
		slog.Debug("stream file aborted", slog.String("file", f.Path), slog.String("error", err.Error()))
	}
}

// ServeThumb handles GET /thumbs/{type}/{name}/{filename}. Images the
// decoder cannot handle are redirected to the original.
//
//	@Summary		Image thumbnail
//	@Tags			files
//	@Produce		jpeg
//	@Success		200
//	@Success		302
//	@Failure		404	{object}	errResponse
//	@Router			/thumbs/{type}/{name}/{filename} [get]
func (h *Handler) ServeThumb(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	f, err := h.svc.LookupFile(r.Context(), sess, chi.URLParam(r, "filename"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if f.Kind != models.KindImage || h.thumbs == nil {
		h.fail(w, r, apperr.ErrNotFound)
		return
	}
	obj, err := h.thumbs.Open(r.Context(), f.Path)
	switch {
	case errors.Is(err, thumbs.ErrUnsupported):
		http.Redirect(w, r, fileURL(sess, f), http.StatusFound)
		return
	case err != nil:
		h.fail(w, r, err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	_, _ = io.Copy(w, obj)
}
