package router

import (
	"github.com/erp/sellersync/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// Handlers are the HTTP handlers the API is built from. A nil handler
// leaves its area unmounted.
type Handlers struct {
	Sync   *handler.SyncHandler
	Jobs   *handler.JobHandler
	Fba    *handler.FbaHandler
	Profit *handler.ProfitHandler
	Health *handler.HealthHandler
}

// Build registers the health check on the engine root and every API area
// under /api/v1, and returns the router with its route table.
func Build(engine *gin.Engine, h Handlers) *Router {
	if h.Health != nil {
		engine.GET("/health", h.Health.Health)
	}

	r := NewRouter(engine)
	if h.Sync != nil {
		r.Mount(syncRoutes(h.Sync))
	}
	if h.Jobs != nil {
		r.Mount(jobRoutes(h.Jobs))
	}
	if h.Fba != nil {
		r.Mount(fbaRoutes(h.Fba))
	}
	if h.Profit != nil {
		r.Mount(profitRoutes(h.Profit))
	}
	if h.Health != nil {
		r.Mount(NewRouteGroup("system", "/system").GET("/info", h.Health.GetSystemInfo))
	}
	r.Setup()
	return r
}

func syncRoutes(h *handler.SyncHandler) *RouteGroup {
	return NewRouteGroup("sync", "/sync").
		POST("/orders", h.SyncOrders).
		POST("/orders/historical", h.RunHistorical).
		GET("/orders/historical/stream", h.StreamHistorical).
		POST("/finances", h.SyncFinances).
		POST("/shipments", h.SyncShipments).
		POST("/inventory", h.SyncInventory).
		POST("/returns", h.SyncReturns).
		GET("/logs", h.ListLogs)
}

func jobRoutes(h *handler.JobHandler) *RouteGroup {
	return NewRouteGroup("jobs", "/jobs").
		GET("", h.List).
		GET("/schedules", h.Schedules).
		GET("/:id", h.Get).
		POST("/:id/cancel", h.Cancel)
}

func fbaRoutes(h *handler.FbaHandler) *RouteGroup {
	return NewRouteGroup("fba", "/fba").
		GET("/shipments", h.ListShipments).
		POST("/shipments/:id/reconcile", h.Reconcile).
		POST("/shipments/:id/revert", h.Revert).
		POST("/shipments/:id/deduct-once", h.DeductOnce).
		PUT("/stock", h.SetStock).
		GET("/inventory", h.Inventory)
}

func profitRoutes(h *handler.ProfitHandler) *RouteGroup {
	return NewRouteGroup("profit", "/profit").
		GET("/daily", h.Daily).
		GET("/velocity", h.Velocity).
		POST("/rebuild", h.Rebuild).
		POST("/export", h.Export)
}
