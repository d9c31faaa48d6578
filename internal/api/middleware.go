// Package api implements the Nocel HTTP surface using chi: HTML pages for
// browser flows and JSON endpoints for uploads, usage and administration.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nocel/internal/apperr"
	"github.com/starford/nocel/internal/models"
	"github.com/starford/nocel/internal/sessionservice"
)

// AdminAuth returns middleware that validates a Bearer token.
// Requests must carry "Authorization: Bearer <token>".
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			given, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Sweeper runs the expiry sweep ahead of request handling, at most once per
// interval. A zero interval sweeps before every request.
type Sweeper struct {
	svc      *sessionservice.Service
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	last     atomic.Int64
}

// NewSweeper creates a sweeper for sessions older than ttl.
func NewSweeper(svc *sessionservice.Service, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, ttl: ttl, interval: interval, now: time.Now}
}

// TTL returns the session lifetime enforced by the sweeper.
func (s *Sweeper) TTL() time.Duration { return s.ttl }

// Sweep removes expired sessions now.
func (s *Sweeper) Sweep(ctx context.Context) []models.Session {
	s.last.Store(s.now().UnixNano())
	return s.svc.SweepExpired(ctx, s.ttl)
}

// Expired reports whether sess outlived the TTL but has not been swept yet.
func (s *Sweeper) Expired(sess *models.Session) bool {
	return sess.Expired(s.svc.Now(), s.ttl)
}

// MaybeSweep sweeps unless a sweep ran within the interval.
func (s *Sweeper) MaybeSweep(ctx context.Context) {
	now := s.now().UnixNano()
	last := s.last.Load()
	if last != 0 && now-last < int64(s.interval) {
		return
	}
	if !s.last.CompareAndSwap(last, now) {
		return // another request is sweeping
	}
	if removed := s.svc.SweepExpired(ctx, s.ttl); len(removed) > 0 {
		slog.Debug("request sweep", slog.Int("removed", len(removed)))
	}
}

// Middleware sweeps before passing the request on. Sweep failures never
// reach the client.
func (s *Sweeper) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.MaybeSweep(r.Context())
		next.ServeHTTP(w, r)
	})
}

type sessionKey struct{}

func sessionFrom(r *http.Request) *models.Session {
	sess, _ := r.Context().Value(sessionKey{}).(*models.Session)
	return sess
}

// loadSession resolves {type} and {name} into the session and stores it in
// the request context. Private sessions without a grant look missing.
func (h *Handler) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		typ, err := models.ParseSessionType(chi.URLParam(r, "type"))
		if err != nil {
			h.fail(w, r, apperr.ErrNotFound)
			return
		}
		sess, err := h.svc.Lookup(r.Context(), chi.URLParam(r, "name"), typ)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if h.sweeper != nil && h.sweeper.Expired(sess) {
			h.fail(w, r, apperr.ErrNotFound)
			return
		}
		if sess.IsPrivate() && !h.grants.Allowed(r, sess.Name) {
			h.fail(w, r, apperr.ErrNotFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

// eventScope guards GET /events?session=type/name. Streams scoped to a
// private session need the same grant as the session page.
func (h *Handler) eventScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := r.URL.Query().Get("session")
		if scope == "" {
			next.ServeHTTP(w, r)
			return
		}
		rawType, name, ok := strings.Cut(scope, "/")
		typ, err := models.ParseSessionType(rawType)
		if !ok || err != nil || name == "" {
			h.fail(w, r, apperr.ErrNotFound)
			return
		}
		if typ == models.SessionPrivate && !h.grants.Allowed(r, name) {
			h.fail(w, r, apperr.ErrNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
