package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	handler "github.com/newthinker/btviz/internal/api/handler/api"
	"github.com/newthinker/btviz/internal/api/handler/web"
	"github.com/newthinker/btviz/internal/api/job"
	"github.com/newthinker/btviz/internal/api/middleware"
	"github.com/newthinker/btviz/internal/api/response"
	"github.com/newthinker/btviz/internal/app"
	"github.com/newthinker/btviz/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server for btviz
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	app        *app.App
	jobs       *job.Store
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	APIKey       string
	TemplatesDir string
	MetricsPath  string // empty disables /metrics
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, a *app.App, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		logger: logger,
		mux:    mux,
		app:    a,
		jobs:   job.NewStore(100, time.Hour),
	}

	if err := s.setupRoutes(cfg); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// no WriteTimeout: stream connections stay open
	}
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config) error {
	// Web UI routes
	webHandler, err := web.NewHandler(cfg.TemplatesDir, s.app.Sessions(), s.app.Config().Playback.VisibleWindow)
	if err != nil {
		return fmt.Errorf("creating web handler: %w", err)
	}
	s.mux.HandleFunc("GET /{$}", webHandler.Index)
	s.mux.HandleFunc("GET /sessions/{id}", webHandler.Session)
	s.mux.HandleFunc("GET /sessions/{id}/chart", webHandler.Chart)

	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	if reg := s.app.Metrics(); reg != nil && cfg.MetricsPath != "" {
		s.mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	// API v1 routes
	sessions := handler.NewSessionsHandler(s.app)
	playback := handler.NewPlaybackHandler(s.app)
	exports := handler.NewExportsHandler(s.app, s.jobs)
	stream := handler.NewStreamHandler(s.app, s.logger)

	v1 := http.NewServeMux()
	v1.HandleFunc("POST /api/v1/sessions", sessions.Create)
	v1.HandleFunc("GET /api/v1/sessions", sessions.List)
	v1.HandleFunc("GET /api/v1/sessions/{id}", sessions.Get)
	v1.HandleFunc("PUT /api/v1/sessions/{id}", sessions.Replace)
	v1.HandleFunc("DELETE /api/v1/sessions/{id}", sessions.Delete)
	v1.HandleFunc("GET /api/v1/sessions/{id}/candles", sessions.Candles)
	v1.HandleFunc("GET /api/v1/sessions/{id}/balance", sessions.Balance)
	v1.HandleFunc("GET /api/v1/sessions/{id}/markers", sessions.Markers)
	v1.HandleFunc("GET /api/v1/sessions/{id}/view", sessions.View)
	v1.HandleFunc("GET /api/v1/sessions/{id}/playback", playback.Position)
	v1.HandleFunc("POST /api/v1/sessions/{id}/playback", playback.Control)
	v1.HandleFunc("GET /api/v1/sessions/{id}/stream", stream.Serve)
	v1.HandleFunc("POST /api/v1/sessions/{id}/exports", exports.Create)
	v1.HandleFunc("GET /api/v1/sessions/{id}/exports", exports.List)
	v1.HandleFunc("GET /api/v1/exports/{job}", exports.Status)

	s.mux.Handle("/api/v1/", middleware.APIKeyAuth(cfg.APIKey)(v1))

	return nil
}

// Handler returns the routes wrapped in logging and metrics middleware
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if reg := s.app.Metrics(); reg != nil {
		h = metrics.HTTPMiddleware(reg)(h)
	}
	return metrics.LoggingMiddleware(s.logger)(h)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.app.Sessions().Len(),
	})
}
