package handler

import (
	"context"

	"github.com/erp/sellersync/internal/domain/fulfillment"
	"github.com/erp/sellersync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ShipmentReconciler decides what happens to local stock for FBA shipments.
type ShipmentReconciler interface {
	Preview(ctx context.Context, shipmentID string, action fulfillment.Action, warehouseID uuid.UUID) (*fulfillment.Plan, error)
	Apply(ctx context.Context, shipmentID string, action fulfillment.Action, warehouseID uuid.UUID) (*fulfillment.Plan, error)
	Revert(ctx context.Context, shipmentID string) (*fulfillment.Plan, error)
	DeductOnce(ctx context.Context, shipmentID string, warehouseID uuid.UUID) (*fulfillment.Plan, error)
	SetStock(ctx context.Context, warehouseID uuid.UUID, sku string, quantity int64) error
	List(ctx context.Context, status fulfillment.ReconciliationStatus, limit int) ([]fulfillment.Shipment, error)
}

// InventorySnapshots reads the latest FBA inventory snapshot.
type InventorySnapshots interface {
	Snapshots(ctx context.Context) ([]fulfillment.FbaInventory, error)
}

// FbaHandler handles FBA shipment reconciliation and stock endpoints
type FbaHandler struct {
	BaseHandler
	reconciler ShipmentReconciler
	inventory  InventorySnapshots
}

// NewFbaHandler creates a new FbaHandler
func NewFbaHandler(reconciler ShipmentReconciler, inventory InventorySnapshots) *FbaHandler {
	return &FbaHandler{reconciler: reconciler, inventory: inventory}
}

// ReconcileRequest is the body of POST /fba/shipments/:id/reconcile.
// An empty warehouse_id falls back to the configured default warehouse.
type ReconcileRequest struct {
	Action      fulfillment.Action `json:"action" binding:"required,oneof=accept deduct"`
	WarehouseID string             `json:"warehouse_id" binding:"omitempty,uuid"`
	DryRun      bool               `json:"dry_run"`
}

// DeductOnceRequest is the body of POST /fba/shipments/:id/deduct-once.
type DeductOnceRequest struct {
	WarehouseID string `json:"warehouse_id" binding:"omitempty,uuid"`
}

// SetStockRequest is the body of PUT /fba/stock.
type SetStockRequest struct {
	WarehouseID string `json:"warehouse_id" binding:"omitempty,uuid"`
	SKU         string `json:"sku" binding:"required,max=128"`
	Quantity    *int64 `json:"quantity" binding:"required,min=0"`
}

// Reconcile handles POST /fba/shipments/:id/reconcile. A dry run returns the
// planned deductions; otherwise the same plan is returned with applied set.
func (h *FbaHandler) Reconcile(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	warehouseID := parseOptionalUUID(req.WarehouseID)

	var (
		plan *fulfillment.Plan
		err  error
	)
	if req.DryRun {
		plan, err = h.reconciler.Preview(c.Request.Context(), c.Param("id"), req.Action, warehouseID)
	} else {
		plan, err = h.reconciler.Apply(c.Request.Context(), c.Param("id"), req.Action, warehouseID)
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plan)
}

// Revert handles POST /fba/shipments/:id/revert
func (h *FbaHandler) Revert(c *gin.Context) {
	plan, err := h.reconciler.Revert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plan)
}

// DeductOnce handles POST /fba/shipments/:id/deduct-once
func (h *FbaHandler) DeductOnce(c *gin.Context) {
	var req DeductOnceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleValidationError(c, err)
			return
		}
	}
	plan, err := h.reconciler.DeductOnce(c.Request.Context(), c.Param("id"), parseOptionalUUID(req.WarehouseID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plan)
}

// ListShipments handles GET /fba/shipments?status=&limit=
func (h *FbaHandler) ListShipments(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	status := fulfillment.ReconciliationStatus(c.Query("status"))
	shipments, err := h.reconciler.List(c.Request.Context(), status, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]ShipmentResponse, len(shipments))
	for i := range shipments {
		out[i] = newShipmentResponse(&shipments[i])
	}
	h.SuccessList(c, out, len(out), limit)
}

// SetStock handles PUT /fba/stock
func (h *FbaHandler) SetStock(c *gin.Context) {
	var req SetStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	warehouseID := parseOptionalUUID(req.WarehouseID)
	if err := h.reconciler.SetStock(c.Request.Context(), warehouseID, req.SKU, *req.Quantity); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"sku": req.SKU, "quantity": *req.Quantity})
}

// Inventory handles GET /fba/inventory
func (h *FbaHandler) Inventory(c *gin.Context) {
	if h.inventory == nil {
		h.ServiceUnavailable(c, "FBA inventory sync is not configured")
		return
	}
	rows, err := h.inventory.Snapshots(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]InventoryResponse, len(rows))
	for i := range rows {
		out[i] = newInventoryResponse(&rows[i])
	}
	h.SuccessList(c, out, len(out), 0)
}

// parseOptionalUUID parses an id already checked by the binding tags.
func parseOptionalUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}
