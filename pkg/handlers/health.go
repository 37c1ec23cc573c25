package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"project-hub-backend/pkg/database"
	"project-hub-backend/pkg/utils"
)

// HealthHandler serves the liveness and readiness checks.
type HealthHandler struct {
	*base
	db database.DatabaseInterface
}

// GET /health
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"status":      "ok",
		"environment": h.config.Environment,
		"timestamp":   time.Now().UTC(),
	})
}

// GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.HealthCheck(ctx); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		utils.WriteErrorResponse(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	utils.WriteSuccessResponse(w, map[string]string{"status": "ready"})
}
