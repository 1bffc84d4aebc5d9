package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/sellersync/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(t.Context())
	})
	return sr
}

func TestTracing_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	assert.Empty(t, Tracing(false, "sellersync"))

	router := gin.New()
	router.Use(Tracing(false, "sellersync")...)
	router.GET("/test", func(c *gin.Context) {
		assert.False(t, trace.SpanFromContext(c.Request.Context()).SpanContext().IsValid())
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/test"))
}

func TestTracing_RouteSpanCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(logger.GinMiddleware(zap.NewNop()))
	router.Use(Tracing(true, "sellersync")...)
	router.GET("/api/v1/sync/jobs/:id", func(c *gin.Context) {
		assert.True(t, trace.SpanFromContext(c.Request.Context()).SpanContext().IsValid())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/jobs/42", nil)
	req.Header.Set(logger.RequestIDHeader, "req-123")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/sync/jobs/:id", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	assert.Contains(t, spans[0].Attributes(), attribute.String("request_id", "req-123"))
}
