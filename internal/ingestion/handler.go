package ingestion

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"smsinbox/internal/constants"
	"smsinbox/internal/logger"
	pkgerrors "smsinbox/pkg/errors"
)

type Handler struct {
	Service      *Service
	Logger       logger.Logger
	MaxBodyBytes int64
}

func NewHandler(service *Service, log logger.Logger, maxBodyBytes int64) *Handler {
	return &Handler{
		Service:      service,
		Logger:       log,
		MaxBodyBytes: maxBodyBytes,
	}
}

// RegisterRoutes mounts POST /webhook behind the given middleware.
func (h *Handler) RegisterRoutes(router gin.IRouter, middleware ...gin.HandlerFunc) {
	handlers := append(append([]gin.HandlerFunc{}, middleware...), h.Receive)
	router.POST("/webhook", handlers...)
}

// WebhookRequest documents the accepted payload.
type WebhookRequest struct {
	MessageID string  `json:"message_id" example:"m1"`
	From      string  `json:"from" example:"+919876543210"`
	To        string  `json:"to" example:"+14155550100"`
	TS        string  `json:"ts" example:"2025-01-15T10:00:00Z"`
	Text      *string `json:"text,omitempty" example:"Hello"`
}

// Receive godoc
// @Summary      Ingest a webhook message
// @Description  Verifies the HMAC signature of the raw body and stores the message once per message_id. Redeliveries return 200 without changing the stored row.
// @Tags         webhook
// @Accept       json
// @Produce      json
// @Param        X-Signature  header    string          true  "sha256=<hex HMAC-SHA256 of the raw body>"
// @Param        message      body      WebhookRequest  true  "Message"
// @Success      200          {object}  map[string]string
// @Failure      401          {object}  errors.ErrorResponse
// @Failure      413          {object}  errors.ErrorResponse
// @Failure      422          {object}  errors.ErrorResponse
// @Failure      500          {object}  errors.ErrorResponse
// @Router       /webhook [post]
func (h *Handler) Receive(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.Set(constants.CtxKeyResult, "payload_too_large")
			c.JSON(http.StatusRequestEntityTooLarge, pkgerrors.ToErrorResponse(pkgerrors.ErrPayloadTooLarge))
			return
		}
		h.Logger.WarnwCtx(c.Request.Context(), "Failed to read webhook body", "error", err)
		c.JSON(http.StatusBadRequest, pkgerrors.ToErrorResponse(pkgerrors.ErrBadRequest))
		return
	}

	res := h.Service.Ingest(c.Request.Context(), raw, c.GetHeader(constants.SignatureHeader))

	c.Set(constants.CtxKeyResult, res.Label())
	c.Set(constants.CtxKeyDuplicate, res.Outcome == OutcomeDuplicate)
	if res.MessageID != "" {
		c.Set(constants.CtxKeyMessageID, res.MessageID)
	}

	switch res.Outcome {
	case OutcomeStored, OutcomeDuplicate:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case OutcomeUnauthenticated:
		c.JSON(http.StatusUnauthorized, pkgerrors.ToErrorResponse(pkgerrors.ErrUnauthorized))
	case OutcomeInvalidPayload:
		c.JSON(http.StatusUnprocessableEntity, pkgerrors.ToErrorResponse(res.Validation.AppError()))
	default:
		c.JSON(http.StatusInternalServerError, pkgerrors.ToErrorResponse(pkgerrors.ErrInternal))
	}
}
