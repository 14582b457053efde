package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. metricsHandler, when non-nil, is
// mounted on /metrics.
func NewServer(cfg domain.ServerConfig, deps Deps, metricsHandler http.Handler, version string) *Server {
	handler := NewHandler(deps, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(middleware.RealIP)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler)
	}

	limit := func(l RateLimit) func(http.Handler) http.Handler {
		return RateLimitMiddleware(deps.Cache, l, deps.Metrics)
	}

	// Payment path
	router.Post("/check", handler.Check)
	router.Route("/transactions", func(r chi.Router) {
		r.Post("/", handler.CreateTransaction)
		r.Get("/{id}", handler.GetTransaction)
		r.Patch("/{id}/status", handler.UpdateTransactionStatus)
	})

	// Admin surface
	router.Route("/alerts", func(r chi.Router) {
		r.With(limit(AlertsLimit)).Get("/", handler.ListAlerts)
		r.With(limit(AlertsLimit)).Get("/{id}", handler.GetAlert)
		r.With(limit(ReviewLimit)).Patch("/{id}/review", handler.ReviewAlert)
	})
	router.Route("/config/{merchantId}", func(r chi.Router) {
		r.Get("/", handler.GetConfig)
		r.With(limit(ConfigLimit)).Put("/", handler.UpdateConfig)
	})
	router.With(limit(StatsLimit)).Get("/stats", handler.GetStats)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.config.ReadTimeout) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
