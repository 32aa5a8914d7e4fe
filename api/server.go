/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/agents/*           Agents, warnings, evaluation, actions, performance
  /api/recommendations/*  Recommendation review
  /api/leaders/*          Leadership accountability
  /api/at-risk            At-risk agents
  /api/policy             Effective policy
  /api/scenarios/*        Demo scenarios
  /metrics                Prometheus

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

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
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.Post("/", h.CreateAgent)
			r.Get("/{id}", h.GetAgent)
			r.Get("/{id}/warnings", h.ListWarnings)
			r.Post("/{id}/warnings", h.RecordWarning)
			r.Post("/{id}/evaluate", h.Evaluate)
			r.Post("/{id}/actions", h.LogAction)
			r.Post("/{id}/performance", h.RecordPerformance)
		})

		r.Route("/recommendations", func(r chi.Router) {
			r.Get("/", h.ListRecommendations)
			r.Get("/{id}", h.GetRecommendation)
			r.Post("/{id}/action", h.MarkActioned)
		})

		r.Route("/leaders", func(r chi.Router) {
			r.Post("/sweep", h.Sweep)
			r.Post("/{id}/evaluate", h.EvaluateLeader)
			r.Get("/{id}/reports", h.LeaderReports)
		})

		r.Get("/at-risk", h.AtRisk)
		r.Get("/policy", h.GetPolicy)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := h.Store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
