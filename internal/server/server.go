// Package server exposes the quality engine and analysis tables over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/meridian-mel/fieldqc-cli/internal/engine"
	"github.com/meridian-mel/fieldqc-cli/internal/model"
	"github.com/meridian-mel/fieldqc-cli/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	server     *http.Server
	opts       engine.Options
	boundaries []model.Boundary
	store      store.Store
}

// New creates the server with its routes wired.
func New(port int, opts engine.Options, boundaries []model.Boundary, st store.Store) *Server {
	s := &Server{
		opts:       opts,
		boundaries: boundaries,
		store:      st,
	}

	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/quality/run", s.handleQualityRun)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/{id}", s.handleGetRun)
			r.Get("/{id}/submissions", s.handleListSubmissions)
		})

		r.Route("/analysis", func(r chi.Router) {
			r.Get("/schema", s.handleAnalysisSchema)
			r.Get("/table", s.handleAnalysisTable)
		})
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	return s
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	zap.L().Info("server: listening", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
