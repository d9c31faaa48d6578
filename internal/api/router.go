package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/nocel/internal/access"
	"github.com/starford/nocel/internal/dbx"
	"github.com/starford/nocel/internal/sessionservice"
	"github.com/starford/nocel/internal/store"
	"github.com/starford/nocel/internal/thumbs"
)

// DefaultPageSize is used when Config.PageSize is not set.
const DefaultPageSize = 20

// Config bundles the dependencies of the HTTP surface.
type Config struct {
	Service *sessionservice.Service
	DB      *store.DB
	Grants  *access.Grants
	Thumbs  *thumbs.Generator
	// Events, if non-nil, is mounted at GET /events.
	Events http.Handler
	// Sweeper, if non-nil, removes expired sessions ahead of requests.
	Sweeper *Sweeper

	PageSize        int
	MaxRequestBytes int64

	AdminEnabled bool
	AdminToken   string
}

// NewRouter creates a chi router with all routes mounted.
func NewRouter(cfg Config) chi.Router {
	h := NewHandler(cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	})
	r.Get("/health/ready", h.Ready)

	// The event stream is long lived and must not pin a pooled connection.
	if cfg.Events != nil {
		r.With(h.eventScope).Get("/events", cfg.Events.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(dbx.Scoped(cfg.DB.Pool(), h.fail))
		if cfg.Sweeper != nil {
			r.Use(cfg.Sweeper.Middleware)
		}

		r.Get("/", h.Index)
		r.Get("/sessions", h.Index)
		r.Post("/access-private", h.AccessPrivate)
		r.Get("/new/{type}", h.NewSessionForm)
		r.Post("/new/{type}", h.CreateSession)

		r.Route("/session/{type}/{name}", func(r chi.Router) {
			r.Use(h.loadSession)
			r.Get("/", h.ShowSession)
			r.Post("/note/add", h.AddNote)
			r.Post("/note/{id}/edit", h.EditNote)
			r.Post("/note/{id}/delete", h.DeleteNote)
			r.Post("/upload", h.Upload)
			r.Get("/file/{id}/edit", h.EditFileForm)
			r.Post("/file/{id}/edit", h.EditFile)
			r.Post("/file/{id}/delete", h.DeleteFile)
			r.Get("/storage", h.Storage)
		})
		r.With(h.loadSession).Get("/files/{type}/{name}/{filename}", h.ServeFile)
		r.With(h.loadSession).Get("/thumbs/{type}/{name}/{filename}", h.ServeThumb)

		if cfg.AdminEnabled {
			r.Route("/admin", func(r chi.Router) {
				r.Use(AdminAuth(cfg.AdminToken))
				r.Post("/sweep", h.AdminSweep)
				r.Delete("/sessions/{type}/{name}", h.AdminDeleteSession)
			})
		}
	})

	return r
}
