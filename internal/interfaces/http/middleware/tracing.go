package middleware

import (
	"github.com/erp/sellersync/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxRequestIDLength bounds the request id copied onto spans.
const maxRequestIDLength = 128

// Tracing starts a server span per request on the global tracer provider
// through otelgin, named after the route pattern, and tags it with the
// request id. The chain is empty when tracing is disabled. Register it after
// logger.GinMiddleware so the request id is already assigned.
func Tracing(enabled bool, serviceName string) gin.HandlersChain {
	if !enabled {
		return nil
	}
	// otelgin runs the rest of the chain inside its span, so enrichSpan
	// sees it live.
	return gin.HandlersChain{otelgin.Middleware(serviceName), enrichSpan}
}

func enrichSpan(c *gin.Context) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}
	id := c.GetHeader(logger.RequestIDHeader)
	if v, ok := c.Get("request_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			id = s
		}
	}
	if len(id) > maxRequestIDLength {
		id = id[:maxRequestIDLength]
	}
	if id != "" {
		span.SetAttributes(attribute.String("request_id", id))
	}
}
