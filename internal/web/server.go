// Package web provides a small web UI for browsing research runs.
package web

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"os"

	"github.com/metalagman/ttdr/internal/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server provides the web UI handlers and state.
type Server struct {
	store    *run.Store
	registry *prometheus.Registry
	tmpl     *template.Template
	logger   zerolog.Logger
}

//go:embed templates/*.html
var templatesFS embed.FS

// NewServer creates a new web server. registry may be nil, in which case
// /metrics is not served.
func NewServer(store *run.Store, registry *prometheus.Registry, logger zerolog.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{
		store:    store,
		registry: registry,
		tmpl:     tmpl,
		logger:   logger.With().Str("component", "web").Logger(),
	}, nil
}

// Routes returns the router for the web UI.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	mux.HandleFunc("GET /runs/{id}/report.md", s.handleReport)
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListRuns(r.Context(), 100)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.render(w, "index.html", records)
}

type runPage struct {
	Run    run.Record
	Events []run.Event
	Report string
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	events, err := s.store.Events(r.Context(), rec.RunID)
	if err != nil {
		s.fail(w, err)
		return
	}
	page := runPage{Run: rec, Events: events}
	if rec.ReportPath != "" {
		if data, err := os.ReadFile(rec.ReportPath); err == nil {
			page.Report = string(data)
		} else {
			s.logger.Warn().Err(err).Str("run_id", rec.RunID).Msg("report unreadable")
		}
	}
	s.render(w, "run.html", page)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if rec.ReportPath == "" {
		http.Error(w, "run has no report", http.StatusNotFound)
		return
	}
	data, err := os.ReadFile(rec.ReportPath)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (run.Record, bool) {
	rec, err := s.store.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, run.ErrRunNotFound) {
		http.NotFound(w, r)
		return run.Record{}, false
	}
	if err != nil {
		s.fail(w, err)
		return run.Record{}, false
	}
	return rec, true
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("render failed")
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
