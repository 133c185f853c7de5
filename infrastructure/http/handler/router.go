package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fixora/secret-review/infrastructure/http/middleware"
	"github.com/fixora/secret-review/infrastructure/http/response"
	"github.com/fixora/secret-review/infrastructure/service/metrics"
)

type RouterConfig struct {
	Changes   *ChangeHandler
	Health    *HealthHandler
	Auth      *middleware.AuthMiddleware
	RateLimit *middleware.RateLimitMiddleware
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
}

// NewRouter mounts the public probes and the authenticated review API.
// Rate limiting runs after authentication so budgets follow the caller identity.
func NewRouter(cfg RouterConfig) *mux.Router {
	root := mux.NewRouter()
	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "", "Route not found")
	})
	if cfg.Metrics != nil {
		root.Use(cfg.Metrics.Middleware)
	}

	root.HandleFunc("/health", cfg.Health.Health).Methods(http.MethodGet)
	root.HandleFunc("/ready", cfg.Health.Ready).Methods(http.MethodGet)
	if cfg.Gatherer != nil {
		root.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := root.NewRoute().Subrouter()
	api.Use(cfg.Auth.RequireAuth)
	if cfg.RateLimit != nil {
		api.Use(cfg.RateLimit.RateLimit)
	}
	cfg.Changes.RegisterRoutes(api)

	return root
}
