/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /                     Service descriptor
  /health               Liveness probe
  /api/policies/*       Stored policy corpus
  /api/categories       Category breakdown
  /api/stats            Corpus statistics
  /api/ingest/*         Ingestion control and history
  /api/admin/*          Admin operations

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	// Service routes
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Policy routes
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Get("/{id}", h.GetPolicy)
		})
		r.Get("/categories", h.GetCategories)
		r.Get("/stats", h.GetStats)

		// Ingestion routes
		r.Route("/ingest", func(r chi.Router) {
			r.Post("/trigger", h.TriggerIngest)
			r.Get("/status", h.IngestStatus)
			r.Post("/toggle", h.ToggleIngest)
			r.Post("/retry", h.RetryAnalysis)
			r.Get("/runs", h.ListRuns)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sample-data", h.LoadSampleData)
		})
	})

	return r
}
