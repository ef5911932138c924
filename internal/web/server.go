// Package web provides the HTTP surface of the import/export engine:
// profile and tree editing, conversion rules, paged export/import runs,
// session management and file download.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/commercekit/dataport/internal/adapter"
	"github.com/commercekit/dataport/internal/profile"
	"github.com/commercekit/dataport/internal/session"
)

// Config holds the web-facing settings of the engine.
type Config struct {
	// FilesDir is where exchange files are written and read.
	FilesDir string
	// PageLimit is the default page size of export/import steps.
	PageLimit int
	// MaxRecordCount caps export id preloads; 0 means unlimited.
	MaxRecordCount int
}

// Server is the HTTP server of the engine.
type Server struct {
	profiles *profile.Store
	sessions *session.Store
	adapters *adapter.Registry
	cfg      Config
	log      *slog.Logger
	router   *chi.Mux
	server   *http.Server
}

// NewServer wires the HTTP surface over the given stores and adapters.
func NewServer(profiles *profile.Store, sessions *session.Store, adapters *adapter.Registry, cfg Config, log *slog.Logger) *Server {
	s := &Server{
		profiles: profiles,
		sessions: sessions,
		adapters: adapters,
		cfg:      cfg,
		log:      log,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(60 * time.Second))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		// Profiles and their mapping trees
		r.Get("/profiles", s.handleListProfiles)
		r.Post("/profiles", s.handleCreateProfile)
		r.Get("/profiles/{id}", s.handleGetProfile)
		r.Delete("/profiles/{id}", s.handleDeleteProfile)
		r.Get("/profiles/{id}/tree", s.handleGetTree)
		r.Post("/profiles/{id}/nodes", s.handleCreateNode)
		r.Put("/profiles/{id}/nodes/{nodeID}", s.handleUpdateNode)
		r.Delete("/profiles/{id}/nodes/{nodeID}", s.handleDeleteNode)

		// Conversion expressions
		r.Get("/profiles/{id}/conversions", s.handleListConversions)
		r.Post("/profiles/{id}/conversions", s.handleCreateConversion)
		r.Put("/conversions/{id}", s.handleUpdateConversion)
		r.Delete("/conversions/{id}", s.handleDeleteConversion)

		// Paged runs
		r.Post("/export/prepare", s.handlePrepareExport)
		r.Post("/export", s.handleExport)
		r.Post("/import/prepare", s.handlePrepareImport)
		r.Post("/import", s.handleImport)

		// Sessions and files
		r.Get("/sessions", s.handleListSessions)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Get("/files/{name}", s.handleDownloadFile)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	s.log.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
