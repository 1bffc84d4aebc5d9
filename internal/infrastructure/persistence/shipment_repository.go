package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/sellersync/internal/domain/fulfillment"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormShipmentRepository implements fulfillment.ShipmentRepository using GORM
type GormShipmentRepository struct {
	db *gorm.DB
}

// NewGormShipmentRepository creates a new GormShipmentRepository
func NewGormShipmentRepository(db *gorm.DB) *GormShipmentRepository {
	return &GormShipmentRepository{db: db}
}

// Upsert mirrors a vendor shipment and its items.
func (r *GormShipmentRepository) Upsert(ctx context.Context, shipment *fulfillment.Shipment) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if shipment.ReconciliationStatus == "" {
			shipment.ReconciliationStatus = fulfillment.ReconciliationPending
		}
		res := tx.Omit("Items").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shipment_id"}},
			DoNothing: true,
		}).Create(shipment)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1

		if !created {
			if err := tx.Model(&fulfillment.Shipment{}).
				Where("shipment_id = ?", shipment.ShipmentID).
				Updates(map[string]any{
					"name":                  shipment.Name,
					"vendor_status":         shipment.VendorStatus,
					"destination_center_id": shipment.DestinationCenterID,
					"vendor_updated_at":     shipment.VendorUpdatedAt,
					"updated_at":            time.Now(),
				}).Error; err != nil {
				return err
			}
		}

		for i := range shipment.Items {
			item := &shipment.Items[i]
			item.ShipmentID = shipment.ShipmentID
			if item.ID == uuid.Nil {
				item.ID = uuid.New()
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "shipment_id"}, {Name: "seller_sku"}},
				DoUpdates: clause.AssignmentColumns([]string{"fnsku", "quantity_shipped", "quantity_received", "updated_at"}),
			}).Create(item).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return created, err
}

// FindByID loads a shipment with its items
func (r *GormShipmentRepository) FindByID(ctx context.Context, shipmentID string) (*fulfillment.Shipment, error) {
	var s fulfillment.Shipment
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("seller_sku") }).
		First(&s, "shipment_id = ?", shipmentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fulfillment.ErrShipmentNotFound
		}
		return nil, err
	}
	return &s, nil
}

// List returns shipments, most recently updated first. An empty status
// lists all.
func (r *GormShipmentRepository) List(ctx context.Context, status fulfillment.ReconciliationStatus, limit int) ([]fulfillment.Shipment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("seller_sku") }).
		Order("vendor_updated_at DESC").
		Limit(limit)
	if status != "" {
		q = q.Where("reconciliation_status = ?", status)
	}
	var shipments []fulfillment.Shipment
	err := q.Find(&shipments).Error
	return shipments, err
}

// PurgeReconciledBefore deletes accepted or deducted shipments reconciled
// before cutoff, with their items.
func (r *GormShipmentRepository) PurgeReconciledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&fulfillment.Shipment{}).
			Where("reconciliation_status IN ? AND reconciled_at < ?",
				[]fulfillment.ReconciliationStatus{fulfillment.ReconciliationAccepted, fulfillment.ReconciliationDeducted},
				cutoff).
			Pluck("shipment_id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("shipment_id IN ?", ids).Delete(&fulfillment.ShipmentItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("shipment_id IN ?", ids).Delete(&fulfillment.Shipment{})
		purged = res.RowsAffected
		return res.Error
	})
	return purged, err
}
