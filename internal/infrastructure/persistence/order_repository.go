package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/sellersync/internal/domain/sales"
	"github.com/erp/sellersync/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderRepository implements sales.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// UpsertOrder inserts the order header or refreshes the report-sourced
// columns of an existing one. A returned order keeps its Returned status.
func (r *GormOrderRepository) UpsertOrder(ctx context.Context, order *sales.Order) (bool, error) {
	db := r.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "amazon_order_id"}},
		DoNothing: true,
	}).Create(order)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	updates := map[string]any{
		"purchase_date":       order.PurchaseDate,
		"last_updated_date":   order.LastUpdatedDate,
		"fulfillment_channel": order.FulfillmentChannel,
		"sales_channel":       order.SalesChannel,
		"ship_city":           order.ShipTo.City,
		"ship_state":          order.ShipTo.State,
		"ship_postal_code":    order.ShipTo.PostalCode,
		"ship_country":        order.ShipTo.Country,
		"updated_at":          time.Now(),
	}
	// Later reports may omit the column; keep the last known ship date.
	if order.ShipDate != nil {
		updates["ship_date"] = order.ShipDate
	}
	if err := db.Model(&sales.Order{}).
		Where("amazon_order_id = ?", order.AmazonOrderID).
		Updates(updates).Error; err != nil {
		return false, err
	}
	if err := db.Model(&sales.Order{}).
		Where("amazon_order_id = ? AND status <> ?", order.AmazonOrderID, sales.OrderStatusReturned).
		Update("status", order.Status).Error; err != nil {
		return false, err
	}
	return false, nil
}

// UpsertItem inserts the item or refreshes its report-sourced columns.
// Fee columns and actual revenue belong to the financial event reconciler
// and are never touched here.
func (r *GormOrderRepository) UpsertItem(ctx context.Context, item *sales.OrderItem) (bool, error) {
	db := r.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "amazon_order_id"}, {Name: "sku"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	updates := map[string]any{
		"asin":               item.ASIN,
		"title":              item.Title,
		"quantity":           item.Quantity,
		"item_price":         item.ItemPrice,
		"item_tax":           item.ItemTax,
		"shipping_price":     item.ShippingPrice,
		"shipping_tax":       item.ShippingTax,
		"gift_wrap_price":    item.GiftWrapPrice,
		"gift_wrap_tax":      item.GiftWrapTax,
		"promotion_discount": item.PromotionDiscount,
		"gross_revenue":      item.GrossRevenue,
		"updated_at":         time.Now(),
	}
	return false, db.Model(&sales.OrderItem{}).
		Where("amazon_order_id = ? AND sku = ?", item.AmazonOrderID, item.SKU).
		Updates(updates).Error
}

// FindOrder finds an order by vendor id
func (r *GormOrderRepository) FindOrder(ctx context.Context, amazonOrderID string) (*sales.Order, error) {
	var order sales.Order
	if err := r.db.WithContext(ctx).First(&order, "amazon_order_id = ?", amazonOrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindItem finds one order line
func (r *GormOrderRepository) FindItem(ctx context.Context, amazonOrderID, sku string) (*sales.OrderItem, error) {
	var item sales.OrderItem
	if err := r.db.WithContext(ctx).
		Where("amazon_order_id = ? AND sku = ?", amazonOrderID, sku).
		First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// FindItems returns every line of an order
func (r *GormOrderRepository) FindItems(ctx context.Context, amazonOrderID string) ([]sales.OrderItem, error) {
	var items []sales.OrderItem
	err := r.db.WithContext(ctx).
		Where("amazon_order_id = ?", amazonOrderID).
		Order("sku").
		Find(&items).Error
	return items, err
}

// SaveItem writes every column of an existing line
func (r *GormOrderRepository) SaveItem(ctx context.Context, item *sales.OrderItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// MarkReturned sets the order status to Returned
func (r *GormOrderRepository) MarkReturned(ctx context.Context, amazonOrderID string) error {
	res := r.db.WithContext(ctx).Model(&sales.Order{}).
		Where("amazon_order_id = ?", amazonOrderID).
		Updates(map[string]any{"status": sales.OrderStatusReturned, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountOrders returns the number of stored orders
func (r *GormOrderRepository) CountOrders(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&sales.Order{}).Count(&n).Error
	return n, err
}

// LatestPurchaseDate returns the newest purchase date, or the zero time when
// no orders exist.
func (r *GormOrderRepository) LatestPurchaseDate(ctx context.Context) (time.Time, error) {
	var order sales.Order
	err := r.db.WithContext(ctx).Order("purchase_date DESC").Limit(1).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return order.PurchaseDate, nil
}
