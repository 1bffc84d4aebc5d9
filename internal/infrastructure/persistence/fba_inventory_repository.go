package persistence

import (
	"context"
	"time"

	"github.com/erp/sellersync/internal/domain/fulfillment"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormFbaInventoryRepository implements fulfillment.InventorySnapshotRepository
type GormFbaInventoryRepository struct {
	db *gorm.DB
}

// NewGormFbaInventoryRepository creates a new GormFbaInventoryRepository
func NewGormFbaInventoryRepository(db *gorm.DB) *GormFbaInventoryRepository {
	return &GormFbaInventoryRepository{db: db}
}

// Upsert replaces the snapshot of a SKU
func (r *GormFbaInventoryRepository) Upsert(ctx context.Context, snap *fulfillment.FbaInventory) (bool, error) {
	db := r.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoNothing: true,
	}).Create(snap)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	return false, db.Model(&fulfillment.FbaInventory{}).
		Where("sku = ?", snap.SKU).
		Updates(map[string]any{
			"fnsku":          snap.FNSKU,
			"asin":           snap.ASIN,
			"fulfillable":    snap.Fulfillable,
			"inbound":        snap.Inbound,
			"reserved":       snap.Reserved,
			"unfulfillable":  snap.Unfulfillable,
			"vendor_updated": snap.VendorUpdated,
			"updated_at":     time.Now(),
		}).Error
}

// List returns every snapshot ordered by SKU
func (r *GormFbaInventoryRepository) List(ctx context.Context) ([]fulfillment.FbaInventory, error) {
	var out []fulfillment.FbaInventory
	err := r.db.WithContext(ctx).Order("sku").Find(&out).Error
	return out, err
}
