package api

import (
	"context"
	"net/http"
	"time"

	"webhook-ingest/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

const readinessTimeout = 2 * time.Second

// HealthController exposes liveness and readiness probes
type HealthController struct {
	checker *health.Checker
}

// NewHealthController creates a new health controller
func NewHealthController(checker *health.Checker) *HealthController {
	return &HealthController{checker: checker}
}

// RegisterRoutes registers the probe routes
func (h *HealthController) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health/live", h.Live)
	router.GET("/health/ready", h.Ready)
}

// Live always reports ok while the process is serving
func (h *HealthController) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready runs every check now and reports 503 when a critical one fails
func (h *HealthController) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	components := h.checker.RunChecks(ctx)
	if !h.checker.IsSystemHealthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "unavailable",
			"components": components,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"components": components,
	})
}
