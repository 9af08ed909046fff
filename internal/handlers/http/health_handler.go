package http

import (
	"context"
	"net/http"
	"time"

	"livecast/internal/core/ports"
	"livecast/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	checker   *monitoring.HealthChecker
	service   ports.BroadcastService
	startTime time.Time
	timeout   time.Duration
}

func NewHealthHandler(checker *monitoring.HealthChecker, service ports.BroadcastService, timeout time.Duration) *HealthHandler {
	return &HealthHandler{
		checker:   checker,
		service:   service,
		startTime: time.Now(),
		timeout:   timeout,
	}
}

func (h *HealthHandler) SetupRoutes(router gin.IRouter) {
	router.GET("/health", h.Liveness)
	router.GET("/ready", h.Readiness)
}

func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
		"sessions":  h.service.SessionCount(),
	})
}

// Readiness fails while any registered dependency is unhealthy.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := h.checker.CheckAll(ctx)
	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
