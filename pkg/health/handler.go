package health

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smsinbox/internal/logger"
)

type Handler struct {
	Registry *CheckerRegistry
	Logger   logger.Logger
}

func NewHandler(registry *CheckerRegistry, log logger.Logger) *Handler {
	return &Handler{
		Registry: registry,
		Logger:   log,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health/live", h.Live)
	router.GET("/health/ready", h.Ready)
}

// Live godoc
// @Summary  Liveness probe
// @Tags     health
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /health/live [get]
func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "live"})
}

// Ready godoc
// @Summary  Readiness probe
// @Description  200 when the message store answers, 503 otherwise. Optional dependencies are reported without affecting the status.
// @Tags     health
// @Produce  json
// @Success  200  {object}  map[string]interface{}
// @Failure  503  {object}  map[string]interface{}
// @Router   /health/ready [get]
func (h *Handler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	result := h.Registry.Check(ctx)

	for name, check := range result.Checks {
		if check.Status == StatusHealthy {
			continue
		}
		if check.Optional {
			h.Logger.WarnwCtx(ctx, "Optional dependency unavailable", "check", name, "error", check.Message)
			continue
		}
		h.Logger.ErrorwCtx(ctx, "Readiness probe failed", "check", name, "error", check.Message)
	}

	if !result.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": StatusUnhealthy,
			"checks": result.Checks,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"checks": result.Checks,
	})
}
