package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/sellersync/internal/domain/sales"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormReturnRepository implements sales.ReturnRepository using GORM
type GormReturnRepository struct {
	db *gorm.DB
}

// NewGormReturnRepository creates a new GormReturnRepository
func NewGormReturnRepository(db *gorm.DB) *GormReturnRepository {
	return &GormReturnRepository{db: db}
}

// Upsert inserts a return or refreshes the report-sourced columns of the
// existing (order, SKU) row. The refund amount is left alone.
func (r *GormReturnRepository) Upsert(ctx context.Context, ret *sales.Return) (bool, error) {
	if ret.ID == uuid.Nil {
		ret.BaseEntity = shared.NewBaseEntity()
	}
	db := r.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "amazon_order_id"}, {Name: "sku"}},
		DoNothing: true,
	}).Create(ret)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	return false, db.Model(&sales.Return{}).
		Where("amazon_order_id = ? AND sku = ?", ret.AmazonOrderID, ret.SKU).
		Updates(map[string]any{
			"asin":               ret.ASIN,
			"fnsku":              ret.FNSKU,
			"return_date":        ret.ReturnDate,
			"quantity":           ret.Quantity,
			"reason":             ret.Reason,
			"disposition":        ret.Disposition,
			"status":             ret.Status,
			"fulfillment_center": ret.FulfillmentCenter,
			"updated_at":         time.Now(),
		}).Error
}

// FindByOrderAndSKU finds the return of one order line
func (r *GormReturnRepository) FindByOrderAndSKU(ctx context.Context, amazonOrderID, sku string) (*sales.Return, error) {
	var ret sales.Return
	if err := r.db.WithContext(ctx).
		Where("amazon_order_id = ? AND sku = ?", amazonOrderID, sku).
		First(&ret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ret, nil
}

// Save writes every column of an existing return
func (r *GormReturnRepository) Save(ctx context.Context, ret *sales.Return) error {
	ret.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(ret).Error
}
