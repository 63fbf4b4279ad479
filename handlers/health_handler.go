package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/vision-gateway/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthChecker reports whether a dependency can serve requests.
// *postgres.DB satisfies it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ProviderLister lists registered model providers. *providers.Registry
// satisfies it.
type ProviderLister interface {
	Names() []string
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db        HealthChecker
	providers ProviderLister
	logger    *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db is nil when the
// invocation log is disabled.
func NewHealthHandler(db HealthChecker, providers ProviderLister, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		providers: providers,
		logger:    logger,
	}
}

// HandleHealth handles GET /healthz
// Basic liveness check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	switch {
	case h.db == nil:
		checks["database"] = "disabled"
	case h.db.HealthCheck(ctx) != nil:
		h.logger.Warn("database health check failed")
		checks["database"] = "unhealthy"
		ready = false
	default:
		checks["database"] = "healthy"
	}

	if h.providers == nil || len(h.providers.Names()) == 0 {
		checks["providers"] = "none_configured"
		ready = false
	} else {
		checks["providers"] = "configured"
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !ready {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
