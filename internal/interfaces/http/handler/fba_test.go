package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/erp/sellersync/internal/domain/fulfillment"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/erp/sellersync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReconciler struct {
	calls       []string
	action      fulfillment.Action
	warehouseID uuid.UUID
	plan        *fulfillment.Plan
	err         error
	stockSKU    string
	stockQty    int64
	shipments   []fulfillment.Shipment
	status      fulfillment.ReconciliationStatus
}

func (f *fakeReconciler) record(call string, action fulfillment.Action, wh uuid.UUID) (*fulfillment.Plan, error) {
	f.calls = append(f.calls, call)
	f.action = action
	f.warehouseID = wh
	return f.plan, f.err
}

func (f *fakeReconciler) Preview(_ context.Context, _ string, action fulfillment.Action, wh uuid.UUID) (*fulfillment.Plan, error) {
	return f.record("preview", action, wh)
}

func (f *fakeReconciler) Apply(_ context.Context, _ string, action fulfillment.Action, wh uuid.UUID) (*fulfillment.Plan, error) {
	return f.record("apply", action, wh)
}

func (f *fakeReconciler) Revert(context.Context, string) (*fulfillment.Plan, error) {
	return f.record("revert", "", uuid.Nil)
}

func (f *fakeReconciler) DeductOnce(_ context.Context, _ string, wh uuid.UUID) (*fulfillment.Plan, error) {
	return f.record("deduct-once", fulfillment.ActionDeduct, wh)
}

func (f *fakeReconciler) SetStock(_ context.Context, wh uuid.UUID, sku string, qty int64) error {
	f.warehouseID = wh
	f.stockSKU = sku
	f.stockQty = qty
	return f.err
}

func (f *fakeReconciler) List(_ context.Context, status fulfillment.ReconciliationStatus, _ int) ([]fulfillment.Shipment, error) {
	f.status = status
	return f.shipments, f.err
}

type fakeSnapshots []fulfillment.FbaInventory

func (f fakeSnapshots) Snapshots(context.Context) ([]fulfillment.FbaInventory, error) { return f, nil }

func newFbaRouter(h *FbaHandler) *gin.Engine {
	r := gin.New()
	r.POST("/fba/shipments/:id/reconcile", h.Reconcile)
	r.POST("/fba/shipments/:id/revert", h.Revert)
	r.POST("/fba/shipments/:id/deduct-once", h.DeductOnce)
	r.GET("/fba/shipments", h.ListShipments)
	r.PUT("/fba/stock", h.SetStock)
	r.GET("/fba/inventory", h.Inventory)
	return r
}

func TestFbaHandler_ReconcileDryRunAndApply(t *testing.T) {
	wh := uuid.New()
	rec := &fakeReconciler{plan: &fulfillment.Plan{
		ShipmentID: "FBA1",
		Action:     fulfillment.ActionDeduct,
		From:       fulfillment.ReconciliationPending,
		To:         fulfillment.ReconciliationDeducted,
		Lines:      []fulfillment.DeductionLine{{SellerSKU: "SKU-1", Shipped: 4, QuantityBefore: 10, QuantityAfter: 6}},
	}}
	router := newFbaRouter(NewFbaHandler(rec, nil))

	w := doRequest(router, http.MethodPost, "/fba/shipments/FBA1/reconcile",
		`{"action":"deduct","warehouse_id":"`+wh.String()+`","dry_run":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"preview"}, rec.calls)
	assert.Equal(t, wh, rec.warehouseID)

	var plan fulfillment.Plan
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &plan))
	require.Len(t, plan.Lines, 1)
	assert.Equal(t, int64(6), plan.Lines[0].QuantityAfter)

	rec.plan.Applied = true
	w = doRequest(router, http.MethodPost, "/fba/shipments/FBA1/reconcile", `{"action":"accept"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"preview", "apply"}, rec.calls)
	assert.Equal(t, fulfillment.ActionAccept, rec.action)
	assert.Equal(t, uuid.Nil, rec.warehouseID, "an absent warehouse falls back in the service")
}

func TestFbaHandler_ReconcileValidation(t *testing.T) {
	rec := &fakeReconciler{}
	router := newFbaRouter(NewFbaHandler(rec, nil))

	for _, body := range []string{
		`{"action":"ship"}`,
		`{}`,
		`{"action":"deduct","warehouse_id":"main"}`,
	} {
		w := doRequest(router, http.MethodPost, "/fba/shipments/FBA1/reconcile", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, rec.calls)
}

func TestFbaHandler_ReconcileConflict(t *testing.T) {
	rec := &fakeReconciler{err: &fulfillment.ConflictError{
		ShipmentID: "FBA1",
		Current:    fulfillment.ReconciliationAccepted,
		Requested:  fulfillment.ReconciliationDeducted,
	}}
	router := newFbaRouter(NewFbaHandler(rec, nil))

	w := doRequest(router, http.MethodPost, "/fba/shipments/FBA1/reconcile", `{"action":"deduct"}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.ErrCodeReconciliationConflict, env.Error.Code)
	assert.Contains(t, string(env.Error.Details), `"current_status":"accepted"`)
}

func TestFbaHandler_RevertDeducted(t *testing.T) {
	rec := &fakeReconciler{err: fulfillment.ErrDeductionIrreversible}
	router := newFbaRouter(NewFbaHandler(rec, nil))

	w := doRequest(router, http.MethodPost, "/fba/shipments/FBA1/revert", "")

	assert.Equal(t, http.StatusConflict, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.ErrCodeIrreversible, env.Error.Code)
}

func TestFbaHandler_DeductOnce(t *testing.T) {
	rec := &fakeReconciler{plan: &fulfillment.Plan{ShipmentID: "FBA1", AlreadyDeducted: true}}
	router := newFbaRouter(NewFbaHandler(rec, nil))

	w := doRequest(router, http.MethodPost, "/fba/shipments/FBA1/deduct-once", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var plan fulfillment.Plan
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &plan))
	assert.True(t, plan.AlreadyDeducted)
}

func TestFbaHandler_SetStock(t *testing.T) {
	rec := &fakeReconciler{}
	router := newFbaRouter(NewFbaHandler(rec, nil))
	wh := uuid.New()

	w := doRequest(router, http.MethodPut, "/fba/stock", `{"warehouse_id":"`+wh.String()+`","sku":"SKU-1","quantity":0}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, wh, rec.warehouseID)
	assert.Equal(t, "SKU-1", rec.stockSKU)
	assert.Zero(t, rec.stockQty)

	w = doRequest(router, http.MethodPut, "/fba/stock", `{"sku":"SKU-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "quantity is required")

	w = doRequest(router, http.MethodPut, "/fba/stock", `{"sku":"SKU-1","quantity":-2}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	rec.err = shared.NewDomainError("INVALID_STOCK", "sku is required")
	w = doRequest(router, http.MethodPut, "/fba/stock", `{"sku":"SKU-1","quantity":3}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFbaHandler_ListShipments(t *testing.T) {
	rec := &fakeReconciler{shipments: []fulfillment.Shipment{{
		ShipmentID:           "FBA1",
		VendorStatus:         "CLOSED",
		ReconciliationStatus: fulfillment.ReconciliationPending,
		Items: []fulfillment.ShipmentItem{
			{SellerSKU: "SKU-1", QuantityShipped: 4},
			{SellerSKU: "SKU-2", QuantityShipped: 6},
		},
	}}}
	router := newFbaRouter(NewFbaHandler(rec, nil))

	w := doRequest(router, http.MethodGet, "/fba/shipments?status=pending", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fulfillment.ReconciliationPending, rec.status)
	var out []ShipmentResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &out))
	require.Len(t, out, 1)
	assert.Equal(t, int64(10), out[0].TotalShipped)
	assert.Len(t, out[0].Items, 2)
}

func TestFbaHandler_Inventory(t *testing.T) {
	snapshots := fakeSnapshots{{SKU: "SKU-1", Fulfillable: 12, Inbound: 3, VendorUpdated: time.Now()}}
	router := newFbaRouter(NewFbaHandler(&fakeReconciler{}, snapshots))

	w := doRequest(router, http.MethodGet, "/fba/inventory", "")
	require.Equal(t, http.StatusOK, w.Code)
	var out []InventoryResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &out))
	require.Len(t, out, 1)
	assert.Equal(t, int64(12), out[0].Fulfillable)

	router = newFbaRouter(NewFbaHandler(&fakeReconciler{}, nil))
	w = doRequest(router, http.MethodGet, "/fba/inventory", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
