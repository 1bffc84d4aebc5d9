package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/sellersync/internal/domain/fulfillment"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedger implements fulfillment.Ledger. Every reconciliation claim is a
// conditional update on the shipment row, so of two concurrent callers
// exactly one sees RowsAffected == 1.
type GormLedger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormLedger creates a new GormLedger
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db, now: time.Now}
}

// Transition implements fulfillment.Ledger
func (l *GormLedger) Transition(ctx context.Context, shipmentID string, from, to fulfillment.ReconciliationStatus) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"reconciliation_status": to,
			"updated_at":            l.now(),
		}
		if to == fulfillment.ReconciliationPending {
			updates["reconciled_at"] = nil
			updates["warehouse_id"] = nil
		} else {
			updates["reconciled_at"] = l.now()
		}
		return l.claim(tx, shipmentID, from, to, updates)
	})
}

// Deduct implements fulfillment.Ledger
func (l *GormLedger) Deduct(ctx context.Context, shipmentID string, warehouseID uuid.UUID, lines []fulfillment.DeductionLine) ([]fulfillment.DeductionLine, error) {
	if warehouseID == uuid.Nil {
		return nil, fulfillment.ErrMissingWarehouseID
	}
	var applied []fulfillment.DeductionLine
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := l.now()
		if err := l.claim(tx, shipmentID, fulfillment.ReconciliationPending, fulfillment.ReconciliationDeducted, map[string]any{
			"reconciliation_status": fulfillment.ReconciliationDeducted,
			"reconciled_at":         now,
			"warehouse_id":          warehouseID,
			"updated_at":            now,
		}); err != nil {
			return err
		}

		written := make(map[string]*fulfillment.InventoryAdjustment)
		applied = make([]fulfillment.DeductionLine, 0, len(lines))
		for _, line := range lines {
			if line.Skipped || line.MatchedSKU == "" {
				applied = append(applied, line)
				continue
			}
			out, err := l.deductLine(tx, shipmentID, warehouseID, line, written, now)
			if err != nil {
				return fmt.Errorf("deduct %s: %w", line.MatchedSKU, err)
			}
			applied = append(applied, out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (l *GormLedger) deductLine(
	tx *gorm.DB,
	shipmentID string,
	warehouseID uuid.UUID,
	line fulfillment.DeductionLine,
	written map[string]*fulfillment.InventoryAdjustment,
	now time.Time,
) (fulfillment.DeductionLine, error) {
	adj, seen := written[line.MatchedSKU]
	if !seen {
		exists, err := hasAdjustment(tx, line.MatchedSKU, fulfillment.AdjustmentTypeFBAShipment, shipmentID)
		if err != nil {
			return line, err
		}
		if exists {
			line.Skipped = true
			line.SkipReason = "already adjusted"
			return line, nil
		}
	}

	inv, err := l.lockInventory(tx, warehouseID, line.MatchedSKU)
	if err != nil {
		return line, err
	}
	before := inv.Available
	after, delta := fulfillment.Deduct(before, line.Shipped)
	line.QuantityBefore = before
	line.QuantityAfter = after

	if err := tx.Model(inv).Updates(map[string]any{"available": after, "updated_at": now}).Error; err != nil {
		return line, err
	}
	if err := l.applyTotal(tx, line.MatchedSKU, delta, now); err != nil {
		return line, err
	}

	if seen {
		// Several shipment lines resolved to the same product: fold them
		// into the one adjustment the unique reference allows.
		adj.QuantityAfter = after
		adj.Delta = after - adj.QuantityBefore
		adj.UpdatedAt = now
		return line, tx.Save(adj).Error
	}

	adj = &fulfillment.InventoryAdjustment{
		BaseEntity:     shared.NewBaseEntity(),
		SKU:            line.MatchedSKU,
		AdjustmentType: fulfillment.AdjustmentTypeFBAShipment,
		Reference:      shipmentID,
		WarehouseID:    warehouseID,
		QuantityBefore: before,
		QuantityAfter:  after,
		Delta:          delta,
		Reason:         "FBA inbound shipment " + shipmentID,
	}
	if err := tx.Create(adj).Error; err != nil {
		return line, err
	}
	written[line.MatchedSKU] = adj
	return line, nil
}

// Available implements fulfillment.Ledger. A missing row reads as zero.
func (l *GormLedger) Available(ctx context.Context, warehouseID uuid.UUID, sku string) (int64, error) {
	var inv fulfillment.WarehouseInventory
	err := l.db.WithContext(ctx).
		Where("warehouse_id = ? AND sku = ?", warehouseID, sku).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return inv.Available, nil
}

// HasAdjustment implements fulfillment.Ledger
func (l *GormLedger) HasAdjustment(ctx context.Context, adjustmentType, reference string) (bool, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&fulfillment.InventoryAdjustment{}).
		Where("adjustment_type = ? AND reference = ?", adjustmentType, reference).
		Count(&n).Error
	return n > 0, err
}

// SetAvailable overwrites the on-hand quantity of a SKU in a warehouse and
// records the change as an adjustment of the given type.
func (l *GormLedger) SetAvailable(ctx context.Context, warehouseID uuid.UUID, sku string, quantity int64, adjustmentType, reference string) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := l.now()
		inv, err := l.lockInventory(tx, warehouseID, sku)
		if err != nil {
			return err
		}
		before := inv.Available
		if err := tx.Model(inv).Updates(map[string]any{"available": quantity, "updated_at": now}).Error; err != nil {
			return err
		}
		if err := l.applyTotal(tx, sku, quantity-before, now); err != nil {
			return err
		}
		return tx.Create(&fulfillment.InventoryAdjustment{
			BaseEntity:     shared.NewBaseEntity(),
			SKU:            sku,
			AdjustmentType: adjustmentType,
			Reference:      reference,
			WarehouseID:    warehouseID,
			QuantityBefore: before,
			QuantityAfter:  quantity,
			Delta:          quantity - before,
			Reason:         "stock set",
		}).Error
	})
}

// claim applies updates only if the shipment is still in from.
func (l *GormLedger) claim(tx *gorm.DB, shipmentID string, from, to fulfillment.ReconciliationStatus, updates map[string]any) error {
	res := tx.Model(&fulfillment.Shipment{}).
		Where("shipment_id = ? AND reconciliation_status = ?", shipmentID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var current fulfillment.Shipment
	if err := tx.Select("shipment_id", "reconciliation_status").
		First(&current, "shipment_id = ?", shipmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fulfillment.ErrShipmentNotFound
		}
		return err
	}
	return &fulfillment.ConflictError{
		ShipmentID: shipmentID,
		Current:    current.ReconciliationStatus,
		Requested:  to,
	}
}

// lockInventory reads the inventory row for update, creating it at zero if
// the SKU has never been stocked in the warehouse.
func (l *GormLedger) lockInventory(tx *gorm.DB, warehouseID uuid.UUID, sku string) (*fulfillment.WarehouseInventory, error) {
	var inv fulfillment.WarehouseInventory
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("warehouse_id = ? AND sku = ?", warehouseID, sku).First(&inv).Error
	if err == nil {
		return &inv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	inv = fulfillment.WarehouseInventory{
		BaseEntity:  shared.NewBaseEntity(),
		WarehouseID: warehouseID,
		SKU:         sku,
		Available:   0,
	}
	if err := tx.Create(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// applyTotal mirrors a warehouse delta into the cross-warehouse total,
// flooring at zero.
func (l *GormLedger) applyTotal(tx *gorm.DB, sku string, delta int64, now time.Time) error {
	var total fulfillment.InventoryTotal
	err := tx.Where("sku = ?", sku).First(&total).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		total = fulfillment.InventoryTotal{SKU: sku, Available: max(delta, 0), UpdatedAt: now}
		return tx.Create(&total).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&total).Updates(map[string]any{
		"available":  max(total.Available+delta, 0),
		"updated_at": now,
	}).Error
}

func hasAdjustment(tx *gorm.DB, sku, adjustmentType, reference string) (bool, error) {
	var n int64
	err := tx.Model(&fulfillment.InventoryAdjustment{}).
		Where("sku = ? AND adjustment_type = ? AND reference = ?", sku, adjustmentType, reference).
		Count(&n).Error
	return n > 0, err
}
