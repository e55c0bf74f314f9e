package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/iago/food-search-pipeline/internal/http/handlers"
	"github.com/iago/food-search-pipeline/internal/http/middleware"
	"github.com/iago/food-search-pipeline/internal/metrics"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *zap.Logger
	Metrics        *metrics.Pipeline
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter builds the front-end routes. ctx bounds background work owned by
// the middleware.
func NewRouter(ctx context.Context, deps RouterDependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Trace(deps.Logger))
	r.Use(chimw.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Get("/healthz", deps.API.Health)
	r.Route("/api/v1/food", func(r chi.Router) {
		r.Use(middleware.RateLimit(ctx, deps.RateLimitRPS, deps.RateLimitBurst))
		r.Post("/search", deps.API.Search)
		r.Get("/search/{id}", deps.API.SearchStatus)
	})

	return r
}

// NewOpsRouter serves health and metrics for the stage processes.
func NewOpsRouter(pipeline *metrics.Pipeline, checks ...handlers.HealthCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteHealth(w, r, checks)
	})
	if pipeline != nil {
		r.Method(http.MethodGet, "/metrics", pipeline.Handler())
	}
	return r
}
