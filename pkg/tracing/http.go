package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// GinMiddleware traces every request except probes, metrics and docs.
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		path := r.URL.Path
		return !strings.HasPrefix(path, "/health") &&
			path != "/metrics" &&
			!strings.HasPrefix(path, "/swagger")
	}))
}
