package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ShipmentRepository persists mirrored FBA shipments.
type ShipmentRepository interface {
	// Upsert writes vendor-sourced fields and items. Reconciliation state of
	// an existing shipment is left untouched.
	Upsert(ctx context.Context, shipment *Shipment) (created bool, err error)
	FindByID(ctx context.Context, shipmentID string) (*Shipment, error)
	List(ctx context.Context, status ReconciliationStatus, limit int) ([]Shipment, error)
	PurgeReconciledBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Ledger applies reconciliation transitions and stock movements atomically.
type Ledger interface {
	// Transition moves a shipment from one status to another only if it is
	// still in from. It returns a *ConflictError otherwise.
	Transition(ctx context.Context, shipmentID string, from, to ReconciliationStatus) error
	// Deduct claims a pending shipment as deducted and applies lines in one
	// transaction. Lines are recomputed against stock read inside the
	// transaction; the returned lines are what was written.
	Deduct(ctx context.Context, shipmentID string, warehouseID uuid.UUID, lines []DeductionLine) ([]DeductionLine, error)
	Available(ctx context.Context, warehouseID uuid.UUID, sku string) (int64, error)
	HasAdjustment(ctx context.Context, adjustmentType, reference string) (bool, error)
	// SetAvailable overwrites the on-hand quantity and records the change.
	SetAvailable(ctx context.Context, warehouseID uuid.UUID, sku string, quantity int64, adjustmentType, reference string) error
}

// InventorySnapshotRepository persists FBA inventory snapshots.
type InventorySnapshotRepository interface {
	Upsert(ctx context.Context, snap *FbaInventory) (created bool, err error)
	List(ctx context.Context) ([]FbaInventory, error)
}
