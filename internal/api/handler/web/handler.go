package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/newthinker/btviz/internal/backtest"
	"github.com/newthinker/btviz/internal/format"
	"github.com/newthinker/btviz/internal/session"
)

//go:embed templates/*
var templateFS embed.FS

var pages = []string{"index.html", "session.html"}

// SessionProvider gives the web pages access to loaded sessions
type SessionProvider interface {
	Get(id string) (*session.Session, error)
	List() []session.Summary
}

// Handler provides web UI handlers with template rendering
type Handler struct {
	// pageTemplates holds one template set per page, each with layout.html
	pageTemplates map[string]*template.Template
	sessions      SessionProvider
	window        int
}

var funcs = template.FuncMap{
	"price":    format.Price,
	"currency": format.Currency,
	"percent":  format.Percentage,
	"ratio": func(r backtest.Ratio) string {
		if r.IsInf() {
			return "∞"
		}
		return fmt.Sprintf("%.2f", float64(r))
	},
}

// NewHandler creates a new web handler with templates loaded from the given directory.
// If templatesDir is empty, it falls back to embedded templates.
func NewHandler(templatesDir string, sessions SessionProvider, window int) (*Handler, error) {
	var fsys fs.FS
	if templatesDir != "" {
		fsys = os.DirFS(filepath.Clean(templatesDir))
	} else {
		fsys = TemplateFS()
	}
	h, err := NewHandlerWithFS(fsys, sessions)
	if err != nil {
		return nil, err
	}
	h.window = window
	return h, nil
}

// NewHandlerWithFS creates a new web handler using a custom filesystem.
func NewHandlerWithFS(fsys fs.FS, sessions SessionProvider) (*Handler, error) {
	pageTemplates := make(map[string]*template.Template)

	for _, page := range pages {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(fsys, "layout.html", page)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		pageTemplates[page] = tmpl
	}

	return &Handler{pageTemplates: pageTemplates, sessions: sessions, window: 50}, nil
}

// render executes the specified page template with the given data
func (h *Handler) render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := h.pageTemplates[page]
	if !ok {
		http.Error(w, "template not found: "+page, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// TemplateFS returns the embedded template filesystem for external use.
func TemplateFS() fs.FS {
	subFS, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return templateFS
	}
	return subFS
}
