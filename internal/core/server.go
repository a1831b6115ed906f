// Package core provides the API chassis for the PlotMarket service: the chi
// router, the global middleware chain, the response envelope, and the health
// and metrics endpoints. Cross-cutting concerns are enforced here before
// requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"plotmarket/internal/config"
)

// Pinger reports backing-store liveness for the health endpoint. Satisfied
// by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouteRegistrar mounts a handler's routes onto a router group. Handlers
// register themselves through these to avoid an import cycle between core
// and the handler packages.
type RouteRegistrar func(chi.Router)

// Server wires configuration, logging, and routing for the API process.
type Server struct {
	Config *config.Config
	Logger *slog.Logger
	DB     Pinger

	// V1RouteRegistrars mount under /v1 behind the full middleware chain.
	V1RouteRegistrars []RouteRegistrar
	// PublicRouteRegistrars mount at the root, outside /v1. Used for the
	// provider webhook, which authenticates by signature instead.
	PublicRouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer validates dependencies and prepares the router. The caller
// mounts routes afterwards via MountRoutes; the separation lets tests
// customize registration.
func NewServer(cfg *config.Config, db Pinger, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		DB:     db,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain, the API version groups,
// and the top-level endpoints.
//
// Middleware order matters:
//  1. Recoverer        - outermost, catches all panics
//  2. RequestID        - correlation ID for everything downstream
//  3. SecurityHeaders  - present on all responses, including errors
//  4. RequestLogger    - structured logs with redacted headers
//  5. CORS             - browser access control
//  6. Metrics          - request count and latency by route pattern
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.Config.Server.CorsAllowedOrigins))
	s.router.Use(MetricsMiddleware)

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	for _, registrar := range s.PublicRouteRegistrars {
		registrar(s.router)
	}

	s.router.Get("/health", s.HandleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// HandleHealth reports process and database liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if s.DB != nil {
		if err := s.DB.Ping(r.Context()); err != nil {
			s.Logger.ErrorContext(r.Context(), "health check database ping failed", "error", err)
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	JSON(w, r, code, APIResponse{Data: map[string]string{
		"status":      status,
		"environment": s.Config.Environment,
	}})
}
