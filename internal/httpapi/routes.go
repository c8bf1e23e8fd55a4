package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/LLM-Dev-Ops/evalbench/internal/agents"
	"github.com/LLM-Dev-Ops/evalbench/internal/gateway"
	"github.com/LLM-Dev-Ops/evalbench/internal/metrics"
	"github.com/LLM-Dev-Ops/evalbench/internal/ratelimit"
)

// Dependencies carries everything the HTTP handlers need. Construct it in
// app.NewServer and pass to MountRoutes.
type Dependencies struct {
	Service     *agents.Service
	Gateway     *gateway.Client
	Metrics     *metrics.Registry
	RateLimiter *ratelimit.Limiter
	Logger      *slog.Logger
}

// MountRoutes registers all HTTP routes on the given router.
func MountRoutes(r chi.Router, d Dependencies) {
	r.Use(requestIDHeader)

	r.Get("/health", HealthHandler(d))
	r.Get("/ready", ReadyHandler(d))
	r.Handle("/metrics", d.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/agents", AgentsListHandler(d))

		r.Group(func(r chi.Router) {
			if d.RateLimiter != nil {
				r.Use(d.RateLimiter.Middleware)
			}
			r.Post("/agents/{agentID}", AgentDispatchHandler(d))
		})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"method not allowed for this endpoint", false)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no such endpoint", false)
	})
}

// requestIDHeader echoes the correlation id on every response, error
// envelopes included.
func requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-Id", reqID)
		}
		next.ServeHTTP(w, r)
	})
}
