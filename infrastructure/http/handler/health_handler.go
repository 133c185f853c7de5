package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/fixora/secret-review/infrastructure/http/response"
	"github.com/fixora/secret-review/infrastructure/service/logger"
)

// Pinger is anything readiness depends on, such as the ledger
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
	logger  logger.Logger
}

func NewHealthHandler(checks map[string]Pinger, log logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		timeout: 3 * time.Second,
		logger:  log,
	}
}

// Health is liveness only
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, "healthy", map[string]string{"status": "healthy"})
}

// Ready pings every dependency and reports 503 when one fails
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	ready := true
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn(ctx, "Readiness check failed", map[string]interface{}{
				"check": name,
				"error": err.Error(),
			})
			results[name] = "unavailable"
			ready = false
			continue
		}
		results[name] = "ok"
	}

	if !ready {
		response.WriteJSON(w, http.StatusServiceUnavailable, response.Envelope{
			Status:  false,
			Message: "not ready",
			Data:    results,
		})
		return
	}
	response.Success(w, http.StatusOK, "ready", results)
}
