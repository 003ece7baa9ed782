package query

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
	router.GET("/messages", h.List)
}

// List godoc
// @Summary      List messages
// @Description  Returns stored messages ordered by ts then message_id, with the total number of matches.
// @Tags         messages
// @Produce      json
// @Param        from    query     string  false  "Exact sender MSISDN; a space is read as '+'"
// @Param        to      query     string  false  "Exact recipient MSISDN; a space is read as '+'"
// @Param        since   query     string  false  "Only messages with ts >= since (YYYY-MM-DDTHH:MM:SSZ)"
// @Param        q       query     string  false  "Case-insensitive substring of text"
// @Param        limit   query     int     false  "Page size"  default(50)
// @Param        offset  query     int     false  "Rows to skip"  default(0)
// @Success      200     {object}  Page
// @Failure      422     {object}  errors.ErrorResponse
// @Failure      500     {object}  errors.ErrorResponse
// @Failure      503     {object}  errors.ErrorResponse
// @Router       /messages [get]
func (h *Handler) List(c *gin.Context) {
	params, appErr := ParseParams(c.Request.URL.Query(), h.Service.Limits())
	if appErr != nil {
		c.JSON(http.StatusUnprocessableEntity, pkgerrors.ToErrorResponse(appErr))
		return
	}

	page, err := h.Service.List(c.Request.Context(), params)
	if err != nil {
		writeStoreError(c, h.Logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func writeStoreError(c *gin.Context, log logger.Logger, err error) {
	if errors.Is(err, storage.ErrCircuitOpen) {
		log.WarnwCtx(c.Request.Context(), "Message store unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, pkgerrors.ToErrorResponse(pkgerrors.ErrServiceUnavailable))
		return
	}
	log.ErrorwCtx(c.Request.Context(), "Failed to list messages", "error", err)
	c.JSON(http.StatusInternalServerError, pkgerrors.ToErrorResponse(pkgerrors.ErrInternal))
}
