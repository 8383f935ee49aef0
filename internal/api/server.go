package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-compliance/kestrel/internal/aggregator"
	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/history"
	"github.com/opensource-compliance/kestrel/internal/orchestrator"
	"github.com/opensource-compliance/kestrel/internal/rules"
	"github.com/opensource-compliance/kestrel/internal/universal"
)

// Server is the HTTP front of the engine: assessment and validation
// endpoints, rule management, and the observability surfaces.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer wires the handler and the route table. Health probes sit
// outside the tenant gate; every other route requires X-Tenant-ID.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, orch *orchestrator.Orchestrator, validator *universal.Validator, agg *aggregator.Aggregator, hist *history.Service, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, orch, validator, agg, hist, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Assessment and validation
		r.Post("/assess", handler.Assess)
		r.Post("/validate", handler.Validate)

		// Result retrieval
		r.Get("/results/{id}", handler.GetResult)

		// Rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)

		// Matrix and registry introspection
		r.Get("/frameworks", handler.Frameworks)
		r.Get("/registry/health", handler.RegistryHealth)

		// Audit, trends, and stats
		r.Get("/audit", handler.Audit)
		r.Get("/trends", handler.Trends)
		r.Get("/stats", handler.Stats)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the route table for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler exposes the handler for tests.
func (s *Server) Handler() *Handler {
	return s.handler
}
