package api

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/starford/nocel/internal/models"
	"github.com/starford/nocel/internal/sessionservice"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = mustParsePages("index.html", "new.html", "session.html", "edit_file.html", "error.html")

func mustParsePages(names ...string) map[string]*template.Template {
	funcs := template.FuncMap{
		"bytes": func(n int64) string { return humanize.IBytes(uint64(max(n, 0))) },
		"ago":   humanize.Time,
		"when":  func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 UTC") },
		"path":  url.PathEscape,
		"query": url.QueryEscape,
		"add":   func(d, n int) int { return n + d },
	}
	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		out[name] = template.Must(template.New(name).Funcs(funcs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name))
	}
	return out
}

// renderPage executes page into a buffer so template errors never leave a
// half-written response.
func renderPage(w http.ResponseWriter, status int, page string, data any) {
	var buf bytes.Buffer
	if err := pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("render page failed", slog.String("page", page), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type indexPage struct {
	sessionservice.Page
}

type newPage struct {
	Type    models.SessionType
	Private bool
}

type sessionPage struct {
	Session    *models.Session
	URL        string
	AccessCode string
	Created    bool
	ExpiresAt  *time.Time
	Items      []models.Item
	Usage      models.Usage
}

type editFilePage struct {
	SessionURL string
	Text       *sessionservice.TextFile
}

type errorPage struct {
	Status  int
	Message string
}

// StatusText is used by the error template.
func (p errorPage) StatusText() string { return http.StatusText(p.Status) }
