package handlers

import (
	"fmt"
	"net/http"

	"github.com/aspira-app/aspira/api/internal/auth"
	"github.com/aspira-app/aspira/api/internal/logging"
	"github.com/aspira-app/aspira/api/internal/metrics"
)

// SystemMetricsHandlers handles system metrics endpoints
type SystemMetricsHandlers struct {
	logger *logging.Logger
}

// NewSystemMetricsHandlers creates new system metrics handlers
func NewSystemMetricsHandlers(logger *logging.Logger) *SystemMetricsHandlers {
	return &SystemMetricsHandlers{
		logger: logger,
	}
}

// GetSystemMetrics returns current host metrics. Admin only.
func (h *SystemMetricsHandlers) GetSystemMetrics(w http.ResponseWriter, r *http.Request) {
	if !auth.GetIsAdminFromContext(r.Context()) {
		WriteError(w, r, http.StatusForbidden, fmt.Errorf("admin access required"), nil)
		return
	}

	systemMetrics, err := metrics.CollectSystemMetrics(r.Context())
	if err != nil {
		h.logger.Error("Failed to collect system metrics", err, nil)
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return
	}

	WriteSuccess(w, systemMetrics, http.StatusOK)
}
