package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/sellersync/internal/domain/fulfillment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedShipment(t *testing.T, db *gorm.DB, id string, items ...fulfillment.ShipmentItem) {
	t.Helper()
	repo := NewGormShipmentRepository(db)
	_, err := repo.Upsert(context.Background(), &fulfillment.Shipment{
		ShipmentID:      id,
		Name:            "inbound " + id,
		VendorStatus:    "SHIPPED",
		VendorUpdatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Items:           items,
	})
	require.NoError(t, err)
}

func seedStock(t *testing.T, ledger *GormLedger, warehouseID uuid.UUID, sku string, qty int64) {
	t.Helper()
	require.NoError(t, ledger.SetAvailable(context.Background(), warehouseID, sku, qty, "stock_set", "seed-"+sku))
}

func line(sku string, shipped int64) fulfillment.DeductionLine {
	return fulfillment.DeductionLine{SellerSKU: sku, MatchedSKU: sku, Shipped: shipped}
}

func TestGormLedger_Deduct(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewGormLedger(db)
	wh := uuid.New()

	seedShipment(t, db, "FBA1")
	seedStock(t, ledger, wh, "SKU-A", 10)
	seedStock(t, ledger, wh, "SKU-B", 2)

	lines, err := ledger.Deduct(ctx, "FBA1", wh, []fulfillment.DeductionLine{
		line("SKU-A", 4),
		line("SKU-B", 5),
		{SellerSKU: "UNKNOWN", Shipped: 3, Skipped: true, SkipReason: "no matching product"},
	})
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, int64(10), lines[0].QuantityBefore)
	assert.Equal(t, int64(6), lines[0].QuantityAfter)
	assert.Equal(t, int64(0), lines[1].QuantityAfter, "stock floors at zero")
	assert.True(t, lines[2].Skipped)

	avail, err := ledger.Available(ctx, wh, "SKU-A")
	require.NoError(t, err)
	assert.Equal(t, int64(6), avail)

	var total fulfillment.InventoryTotal
	require.NoError(t, db.First(&total, "sku = ?", "SKU-B").Error)
	assert.Equal(t, int64(0), total.Available)

	var adj fulfillment.InventoryAdjustment
	require.NoError(t, db.First(&adj, "sku = ? AND adjustment_type = ?", "SKU-B", fulfillment.AdjustmentTypeFBAShipment).Error)
	assert.Equal(t, "FBA1", adj.Reference)
	assert.Equal(t, int64(-2), adj.Delta)

	has, err := ledger.HasAdjustment(ctx, fulfillment.AdjustmentTypeFBAShipment, "FBA1")
	require.NoError(t, err)
	assert.True(t, has)

	var shipment fulfillment.Shipment
	require.NoError(t, db.First(&shipment, "shipment_id = ?", "FBA1").Error)
	assert.Equal(t, fulfillment.ReconciliationDeducted, shipment.ReconciliationStatus)
	require.NotNil(t, shipment.WarehouseID)
	assert.Equal(t, wh, *shipment.WarehouseID)
	assert.NotNil(t, shipment.ReconciledAt)

	t.Run("second deduction conflicts and leaves stock alone", func(t *testing.T) {
		_, err := ledger.Deduct(ctx, "FBA1", wh, []fulfillment.DeductionLine{line("SKU-A", 4)})
		var conflict *fulfillment.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.True(t, errors.Is(err, fulfillment.ErrReconciliationConflict))
		assert.Equal(t, fulfillment.ReconciliationDeducted, conflict.Current)

		avail, err := ledger.Available(ctx, wh, "SKU-A")
		require.NoError(t, err)
		assert.Equal(t, int64(6), avail)
	})
}

func TestGormLedger_DeductMissingInventoryCreatesZeroRow(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewGormLedger(db)
	wh := uuid.New()
	seedShipment(t, db, "FBA2")

	lines, err := ledger.Deduct(ctx, "FBA2", wh, []fulfillment.DeductionLine{line("NEW", 3)})
	require.NoError(t, err)
	assert.Equal(t, int64(0), lines[0].QuantityBefore)
	assert.Equal(t, int64(0), lines[0].QuantityAfter)

	var inv fulfillment.WarehouseInventory
	require.NoError(t, db.First(&inv, "warehouse_id = ? AND sku = ?", wh, "NEW").Error)
	assert.Equal(t, int64(0), inv.Available)
}

func TestGormLedger_DeductFoldsLinesOfSameProduct(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewGormLedger(db)
	wh := uuid.New()
	seedShipment(t, db, "FBA3")
	seedStock(t, ledger, wh, "SKU-A", 10)

	_, err := ledger.Deduct(ctx, "FBA3", wh, []fulfillment.DeductionLine{line("SKU-A", 2), line("SKU-A", 3)})
	require.NoError(t, err)

	var adjustments []fulfillment.InventoryAdjustment
	require.NoError(t, db.Where("reference = ?", "FBA3").Find(&adjustments).Error)
	require.Len(t, adjustments, 1)
	assert.Equal(t, int64(10), adjustments[0].QuantityBefore)
	assert.Equal(t, int64(5), adjustments[0].QuantityAfter)
	assert.Equal(t, int64(-5), adjustments[0].Delta)
}

func TestGormLedger_ConcurrentDeductExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewGormLedger(db)
	wh := uuid.New()
	seedShipment(t, db, "FBA4")
	seedStock(t, ledger, wh, "SKU-A", 100)

	const callers = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Deduct(ctx, "FBA4", wh, []fulfillment.DeductionLine{line("SKU-A", 10)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, fulfillment.ErrReconciliationConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, conflicts)

	avail, err := ledger.Available(ctx, wh, "SKU-A")
	require.NoError(t, err)
	assert.Equal(t, int64(90), avail)
}

func TestGormLedger_Transition(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewGormLedger(db)
	seedShipment(t, db, "FBA5")

	require.NoError(t, ledger.Transition(ctx, "FBA5", fulfillment.ReconciliationPending, fulfillment.ReconciliationAccepted))

	err := ledger.Transition(ctx, "FBA5", fulfillment.ReconciliationPending, fulfillment.ReconciliationAccepted)
	assert.ErrorIs(t, err, fulfillment.ErrReconciliationConflict)

	require.NoError(t, ledger.Transition(ctx, "FBA5", fulfillment.ReconciliationAccepted, fulfillment.ReconciliationPending))

	var s fulfillment.Shipment
	require.NoError(t, db.First(&s, "shipment_id = ?", "FBA5").Error)
	assert.Equal(t, fulfillment.ReconciliationPending, s.ReconciliationStatus)
	assert.Nil(t, s.ReconciledAt)

	err = ledger.Transition(ctx, "missing", fulfillment.ReconciliationPending, fulfillment.ReconciliationAccepted)
	assert.ErrorIs(t, err, fulfillment.ErrShipmentNotFound)
}

func TestGormLedger_DeductRequiresWarehouse(t *testing.T) {
	ledger := NewGormLedger(newTestDB(t))
	_, err := ledger.Deduct(context.Background(), "FBA", uuid.Nil, nil)
	assert.ErrorIs(t, err, fulfillment.ErrMissingWarehouseID)
}
