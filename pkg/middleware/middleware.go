package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"smsinbox/internal/constants"
	"smsinbox/internal/logger"
	pkgerrors "smsinbox/pkg/errors"
	"smsinbox/pkg/logging"
	"smsinbox/pkg/metrics"
	"smsinbox/pkg/tracing"
)

// LoggerMiddleware writes one line per request. Webhook requests also carry
// the message id, duplicate flag and outcome set by the handler.
func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		if raw != "" {
			path = path + "?" + raw
		}

		logFields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", statusCode,
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
		}

		if messageID := c.GetString(constants.CtxKeyMessageID); messageID != "" {
			logFields = append(logFields, "message_id", messageID)
		}
		if result := c.GetString(constants.CtxKeyResult); result != "" {
			logFields = append(logFields,
				"dup", c.GetBool(constants.CtxKeyDuplicate),
				"result", result,
			)
		}
		if traceID, _ := tracing.SpanIDs(c.Request.Context()); traceID != "" {
			logFields = append(logFields, "trace_id", traceID)
		}
		if errorMessage != "" {
			logFields = append(logFields, "error", errorMessage)
		}

		ctx := c.Request.Context()
		switch {
		case statusCode >= 500:
			log.ErrorwCtx(ctx, "HTTP Request", logFields...)
		case statusCode >= 400:
			log.WarnwCtx(ctx, "HTTP Request", logFields...)
		default:
			log.InfowCtx(ctx, "HTTP Request", logFields...)
		}
	}
}

func RecoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		appErr := pkgerrors.RecoverPanic(recovered)
		log.ErrorwCtx(c.Request.Context(), "Panic recovered",
			"error", appErr.Cause,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"stack_trace", appErr.Details["stack_trace"],
		)
		c.AbortWithStatusJSON(appErr.Status, pkgerrors.ToErrorResponse(appErr.Public()))
	})
}

// RequestIDMiddleware propagates X-Request-ID, minting a UUID when absent,
// and stores it in the request context for log correlation.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(constants.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(constants.RequestIDHeader, requestID)

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithServiceName(ctx, constants.ServiceName)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// MetricsMiddleware counts requests by route template and observes latency.
// Unmatched routes share the "unmatched" label.
func MetricsMiddleware(reg *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		reg.IncHTTPRequest(path, c.Writer.Status())
		reg.ObserveRequestLatency(time.Since(start))
	}
}

// Default returns the request chain in order. Recovery is innermost so a
// panicking request is still logged and counted with its 500.
func Default(log logger.Logger, reg *metrics.Registry) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		RequestIDMiddleware(),
		LoggerMiddleware(log),
		MetricsMiddleware(reg),
		RecoveryMiddleware(log),
	}
}
