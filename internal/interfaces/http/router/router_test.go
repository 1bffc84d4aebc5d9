package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/sellersync/internal/domain/fulfillment"
	"github.com/erp/sellersync/internal/domain/job"
	"github.com/erp/sellersync/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouter_APIVersion(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))
	r.Mount(NewRouteGroup("test", "/test").GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	}))
	r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/test/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestRouteGroup_Middleware(t *testing.T) {
	engine := gin.New()
	var seen []string
	group := NewRouteGroup("test", "/test").
		Use(func(c *gin.Context) {
			seen = append(seen, "mw")
			c.Next()
		}).
		POST("/run", func(c *gin.Context) {
			seen = append(seen, "handler")
			c.Status(http.StatusAccepted)
		})
	NewRouter(engine).Mount(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/test/run", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"mw", "handler"}, seen)
	assert.Equal(t, "test", group.Name())
	assert.Equal(t, "/test", group.Prefix())
}

func TestRouter_Routes(t *testing.T) {
	noop := func(*gin.Context) {}
	r := NewRouter(gin.New())
	r.Mount(
		NewRouteGroup("jobs", "/jobs").GET("", noop).POST("/:id/cancel", noop),
		NewRouteGroup("fba", "/fba").PUT("/stock", noop),
	)
	r.Setup()

	assert.Equal(t, []RouteInfo{
		{Group: "fba", Method: http.MethodPut, Path: "/api/v1/fba/stock"},
		{Group: "jobs", Method: http.MethodGet, Path: "/api/v1/jobs"},
		{Group: "jobs", Method: http.MethodPost, Path: "/api/v1/jobs/:id/cancel"},
	}, r.Routes())
}

type stubQueue struct{}

func (stubQueue) Enqueue(context.Context, job.Type, any) (uuid.UUID, error) { return uuid.New(), nil }
func (stubQueue) Get(context.Context, uuid.UUID) (*job.Job, error) { return nil, nil }
func (stubQueue) List(context.Context, job.Filter) ([]job.Job, error) { return nil, nil }
func (stubQueue) Cancel(context.Context, uuid.UUID) (*job.Job, error) { return nil, nil }

type stubReconciler struct{}

func (stubReconciler) Preview(context.Context, string, fulfillment.Action, uuid.UUID) (*fulfillment.Plan, error) {
	return &fulfillment.Plan{}, nil
}
func (stubReconciler) Apply(context.Context, string, fulfillment.Action, uuid.UUID) (*fulfillment.Plan, error) {
	return &fulfillment.Plan{}, nil
}
func (stubReconciler) Revert(context.Context, string) (*fulfillment.Plan, error) {
	return &fulfillment.Plan{}, nil
}
func (stubReconciler) DeductOnce(context.Context, string, uuid.UUID) (*fulfillment.Plan, error) {
	return &fulfillment.Plan{}, nil
}
func (stubReconciler) SetStock(context.Context, uuid.UUID, string, int64) error { return nil }
func (stubReconciler) List(context.Context, fulfillment.ReconciliationStatus, int) ([]fulfillment.Shipment, error) {
	return nil, nil
}

type stubPinger struct{}

func (stubPinger) Ping() error { return nil }

func TestBuild(t *testing.T) {
	engine := gin.New()
	r := Build(engine, Handlers{
		Sync:   handler.NewSyncHandler(nil, stubQueue{}, nil, time.Minute),
		Jobs:   handler.NewJobHandler(stubQueue{}, nil),
		Fba:    handler.NewFbaHandler(stubReconciler{}, nil),
		Health: handler.NewHealthHandler(stubPinger{}, "sellersync", "test"),
	})

	paths := make(map[string]bool)
	for _, info := range r.Routes() {
		paths[info.Method+" "+info.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/sync/orders",
		"POST /api/v1/sync/orders/historical",
		"GET /api/v1/sync/orders/historical/stream",
		"POST /api/v1/sync/returns",
		"GET /api/v1/jobs",
		"GET /api/v1/jobs/schedules",
		"POST /api/v1/jobs/:id/cancel",
		"POST /api/v1/fba/shipments/:id/deduct-once",
		"PUT /api/v1/fba/stock",
		"GET /api/v1/system/info",
	} {
		assert.True(t, paths[want], want)
	}
	assert.False(t, paths["GET /api/v1/profit/daily"], "profit is not mounted without a handler")

	cases := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodPost, "/api/v1/sync/shipments", http.StatusAccepted},
		{http.MethodGet, "/api/v1/jobs/schedules", http.StatusOK},
		{http.MethodGet, "/api/v1/jobs/not-a-uuid", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/profit/daily", http.StatusNotFound},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		require.Equal(t, tc.status, w.Code, "%s %s", tc.method, tc.path)
	}
}
