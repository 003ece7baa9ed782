package stats

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smsinbox/internal/logger"
	"smsinbox/internal/storage"
	pkgerrors "smsinbox/pkg/errors"
)

type Handler struct {
	Service *Service
	Logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{
		Service: service,
		Logger:  log,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/stats", h.Get)
}

// Get godoc
// @Summary      Message statistics
// @Description  Totals, the ten busiest senders and the ts range over all stored messages. Timestamps are null when nothing is stored.
// @Tags         stats
// @Produce      json
// @Success      200  {object}  models.Stats
// @Failure      500  {object}  errors.ErrorResponse
// @Failure      503  {object}  errors.ErrorResponse
// @Router       /stats [get]
func (h *Handler) Get(c *gin.Context) {
	stats, err := h.Service.Compute(c.Request.Context())
	if err != nil {
		if errors.Is(err, storage.ErrCircuitOpen) {
			h.Logger.WarnwCtx(c.Request.Context(), "Message store unavailable", "error", err)
			c.JSON(http.StatusServiceUnavailable, pkgerrors.ToErrorResponse(pkgerrors.ErrServiceUnavailable))
			return
		}
		h.Logger.ErrorwCtx(c.Request.Context(), "Failed to compute stats", "error", err)
		c.JSON(http.StatusInternalServerError, pkgerrors.ToErrorResponse(pkgerrors.ErrInternal))
		return
	}

	c.JSON(http.StatusOK, stats)
}
