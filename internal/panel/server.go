package panel

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/arbor/internal/runner"
	"github.com/rendis/arbor/internal/store"
	"github.com/rendis/arbor/internal/streaming"
)

//go:embed templates
var content embed.FS

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Runner *runner.Runner
	Store  store.Store
	Hub    streaming.EventHub
	Logger *slog.Logger
}

// PanelServer serves the live tree monitor: an HTML dashboard, a JSON API
// and SSE streams of execution events.
type PanelServer struct {
	deps  PanelDeps
	pages map[string]*template.Template
}

// NewPanelServer creates a new PanelServer with parsed templates.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	funcMap := template.FuncMap{
		"json":        toJSON,
		"timeAgo":     timeAgo,
		"statusBadge": statusBadge,
		"truncate":    truncate,
	}

	base := template.Must(
		template.New("").Funcs(funcMap).ParseFS(content, "templates/base.html"),
	)

	pageFiles := []string{
		"dashboard.html",
		"tree_detail.html",
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, pf := range pageFiles {
		clone := template.Must(base.Clone())
		pages[pf] = template.Must(clone.ParseFS(content, "templates/"+pf))
	}

	return &PanelServer{
		deps:  deps,
		pages: pages,
	}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Pages.
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /trees/{uid}", s.handleTreeDetail)

	// SSE streams.
	mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
	mux.HandleFunc("GET /sse/trees/{uid}", s.handleSSETree)

	// JSON API.
	mux.HandleFunc("GET /api/trees", s.handleListTrees)
	mux.HandleFunc("GET /api/trees/{uid}", s.handleTreeStatus)
	mux.HandleFunc("GET /api/trees/{uid}/blackboard", s.handleTreeBlackboard)
	mux.HandleFunc("GET /api/trees/{uid}/transitions", s.handleTreeTransitions)
	mux.HandleFunc("GET /api/trees/{uid}/diagram", s.handleTreeDiagram)
	mux.HandleFunc("POST /api/trees/{uid}/tick", s.handleTickTree)
	mux.HandleFunc("POST /api/trees/{uid}/halt", s.handleHaltTree)
	mux.HandleFunc("DELETE /api/trees/{uid}", s.handleRemoveTree)

	return mux
}

// renderPage executes a page template by name.
func (s *PanelServer) renderPage(w http.ResponseWriter, page string, data any) {
	tmpl, ok := s.pages[page]
	if !ok {
		s.deps.Logger.Error("template not found", "page", page)
		http.Error(w, fmt.Sprintf("template %q not found", page), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		s.deps.Logger.Error("template render error", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
