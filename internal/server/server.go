// Package server provides the HTTP single-page app and JSON API.
package server

import (
	"context"
	"embed"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/policyqa/internal/config"
	"github.com/hyperjump/policyqa/internal/metrics"
	"github.com/hyperjump/policyqa/internal/provider"
	"github.com/hyperjump/policyqa/internal/session"
	"github.com/hyperjump/policyqa/internal/vectorstore"
)

//go:embed static/index.html
var staticFS embed.FS

// requestTimeout bounds a request, including document processing.
const requestTimeout = 5 * time.Minute

// BackendLister reports the backends usable in this deployment. *provider.Registry implements it.
type BackendLister interface {
	Available() []provider.Backend
}

// IndexInfo describes the persisted index. *vectorstore.Store implements it.
type IndexInfo interface {
	Exists() bool
	Manifest() (*vectorstore.Manifest, error)
	DiskUsage() (int64, error)
}

// Server is the HTTP server for the policy Q&A app.
type Server struct {
	controller     *session.Controller
	sessions       *session.Manager
	backends       BackendLister
	index          IndexInfo
	defaultBackend provider.Backend
	config         *config.ServerConfig
	logger         *zap.Logger
	server         *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	controller *session.Controller,
	sessions *session.Manager,
	backends BackendLister,
	index IndexInfo,
	defaultBackend provider.Backend,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		controller:     controller,
		sessions:       sessions,
		backends:       backends,
		index:          index,
		defaultBackend: defaultBackend,
		config:         cfg,
		logger:         logger,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/", s.handleIndexPage)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/backends", s.handleBackends)
		r.Get("/index", s.handleIndexStatus)
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Put("/backend", s.handleSelectBackend)
			r.Post("/documents", s.handleUpload)
			r.Post("/messages", s.handleAsk)
			r.Delete("/messages", s.handleReset)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// instrument records request counts and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, route, status, time.Since(start))
	})
}
