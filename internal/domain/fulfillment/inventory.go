package fulfillment

import (
	"time"

	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/google/uuid"
)

// AdjustmentTypeFBAShipment marks stock leaving a local warehouse for an FBA
// inbound shipment. The shipment id is the adjustment reference.
const AdjustmentTypeFBAShipment = "fba_shipment"

// AdjustmentTypeStockSet marks a manual overwrite of on-hand stock.
const AdjustmentTypeStockSet = "stock_set"

// WarehouseInventory is the on-hand quantity of a SKU in one local warehouse.
type WarehouseInventory struct {
	shared.BaseEntity
	WarehouseID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_warehouse_inventory_sku,priority:1"`
	SKU         string    `gorm:"size:128;not null;uniqueIndex:idx_warehouse_inventory_sku,priority:2"`
	Available   int64     `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (WarehouseInventory) TableName() string {
	return "warehouse_inventories"
}

// InventoryTotal is the cross-warehouse aggregate for a SKU.
type InventoryTotal struct {
	SKU       string `gorm:"primaryKey;size:128"`
	Available int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (InventoryTotal) TableName() string {
	return "inventory_totals"
}

// InventoryAdjustment is the append-only audit row written for every stock
// mutation. (SKU, AdjustmentType, Reference) is unique.
type InventoryAdjustment struct {
	shared.BaseEntity
	SKU            string    `gorm:"size:128;not null;uniqueIndex:idx_inventory_adjustment_ref,priority:1"`
	AdjustmentType string    `gorm:"size:32;not null;uniqueIndex:idx_inventory_adjustment_ref,priority:2"`
	Reference      string    `gorm:"size:128;not null;uniqueIndex:idx_inventory_adjustment_ref,priority:3"`
	WarehouseID    uuid.UUID `gorm:"type:uuid;not null"`
	QuantityBefore int64     `gorm:"not null"`
	QuantityAfter  int64     `gorm:"not null"`
	Delta          int64     `gorm:"not null"`
	Reason         string    `gorm:"size:256"`
}

// TableName returns the table name for GORM
func (InventoryAdjustment) TableName() string {
	return "inventory_adjustments"
}

// Deduct returns the quantity left after removing shipped units from
// before. Stock never goes negative.
func Deduct(before, shipped int64) (after, delta int64) {
	after = before - shipped
	if after < 0 {
		after = 0
	}
	return after, after - before
}

// FbaInventory is the latest FBA-side stock snapshot for a SKU.
type FbaInventory struct {
	SKU           string `gorm:"primaryKey;size:128"`
	FNSKU         string `gorm:"size:32"`
	ASIN          string `gorm:"size:32"`
	Fulfillable   int64  `gorm:"not null;default:0"`
	Inbound       int64  `gorm:"not null;default:0"`
	Reserved      int64  `gorm:"not null;default:0"`
	Unfulfillable int64  `gorm:"not null;default:0"`
	VendorUpdated time.Time
	UpdatedAt     time.Time
}

// TableName returns the table name for GORM
func (FbaInventory) TableName() string {
	return "fba_inventory"
}
