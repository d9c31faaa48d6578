package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/nocel/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// quotaResponse is the 413 body of an upload rejected by the storage cap.
type quotaResponse struct {
	errResponse
	Used      int64 `json:"used" example:"146800640"`
	Limit     int64 `json:"limit" example:"146800640"`
	Remaining int64 `json:"remaining" example:"0"`
}

// wantsJSON reports whether the client asked for a JSON response rather
// than an HTML page or redirect.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrTooLarge), errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(status int, err error) string {
	switch status {
	case http.StatusNotFound:
		return "not found"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal error"
	case http.StatusRequestEntityTooLarge:
		var qe *apperr.QuotaError
		if errors.As(err, &qe) {
			return qe.Error()
		}
		return "request too large"
	default:
		return err.Error()
	}
}

// fail writes err as JSON or as an HTML error page depending on the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	msg := errorMessage(status, err)

	if wantsJSON(r) {
		var qe *apperr.QuotaError
		if errors.As(err, &qe) {
			writeJSON(w, status, quotaResponse{
				errResponse: errorBody(msg),
				Used:        qe.Used,
				Limit:       qe.Limit,
				Remaining:   qe.Remaining,
			})
			return
		}
		writeJSON(w, status, errorBody(msg))
		return
	}
	renderPage(w, status, "error.html", errorPage{Status: status, Message: msg})
}
