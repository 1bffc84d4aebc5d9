package persistence

import (
	"context"
	"sort"
	"time"

	"github.com/erp/sellersync/internal/domain/profit"
	"github.com/erp/sellersync/internal/domain/sales"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormDailyProfitRepository implements profit.Repository using GORM
type GormDailyProfitRepository struct {
	db *gorm.DB
}

// NewGormDailyProfitRepository creates a new GormDailyProfitRepository
func NewGormDailyProfitRepository(db *gorm.DB) *GormDailyProfitRepository {
	return &GormDailyProfitRepository{db: db}
}

type profitSourceRow struct {
	PurchaseDate      time.Time
	SKU               string `gorm:"column:sku"`
	Quantity          int64
	GrossRevenue      decimal.Decimal
	ActualRevenue     decimal.Decimal
	TotalFees         decimal.Decimal
	PromotionDiscount decimal.Decimal
	Cost              decimal.Decimal
}

type profitKey struct {
	date time.Time
	sku  string
}

// Rebuild implements profit.Repository. Rows are aggregated in Go so the
// day bucketing is identical on every driver.
func (r *GormDailyProfitRepository) Rebuild(ctx context.Context, from, to time.Time) (int, error) {
	from = truncateDay(from)
	to = to.UTC()

	written := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []profitSourceRow
		if err := tx.Table("order_items AS oi").
			Select(`o.purchase_date, oi.sku, oi.quantity, oi.gross_revenue, oi.actual_revenue,
				oi.total_fees, oi.promotion_discount, COALESCE(p.cost, 0) AS cost`).
			Joins("JOIN orders o ON o.amazon_order_id = oi.amazon_order_id").
			Joins("LEFT JOIN products p ON p.sku = oi.sku").
			Where("o.purchase_date >= ? AND o.purchase_date < ? AND o.status <> ?", from, to, sales.OrderStatusCancelled).
			Scan(&rows).Error; err != nil {
			return err
		}

		agg := make(map[profitKey]*profit.DailyProfit)
		for _, row := range rows {
			key := profitKey{date: truncateDay(row.PurchaseDate), sku: row.SKU}
			dp, ok := agg[key]
			if !ok {
				dp = &profit.DailyProfit{Date: key.date, SKU: key.sku}
				agg[key] = dp
			}
			revenue := row.GrossRevenue
			if !row.ActualRevenue.IsZero() {
				revenue = row.ActualRevenue
			}
			dp.Units += row.Quantity
			dp.Revenue = dp.Revenue.Add(revenue)
			dp.AmazonFees = dp.AmazonFees.Add(row.TotalFees)
			dp.PromotionalDiscounts = dp.PromotionalDiscounts.Add(row.PromotionDiscount)
			dp.COGS = dp.COGS.Add(row.Cost.Mul(decimal.NewFromInt(row.Quantity)))
		}

		if err := tx.Where("date >= ? AND date < ?", from, to).Delete(&profit.DailyProfit{}).Error; err != nil {
			return err
		}
		if len(agg) == 0 {
			return nil
		}

		out := make([]profit.DailyProfit, 0, len(agg))
		for _, dp := range agg {
			dp.Derive()
			out = append(out, *dp)
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].Date.Equal(out[j].Date) {
				return out[i].Date.Before(out[j].Date)
			}
			return out[i].SKU < out[j].SKU
		})
		written = len(out)
		return tx.CreateInBatches(out, 200).Error
	})
	return written, err
}

// List returns the projection for [from, to), ordered by date then SKU
func (r *GormDailyProfitRepository) List(ctx context.Context, from, to time.Time) ([]profit.DailyProfit, error) {
	var out []profit.DailyProfit
	err := r.db.WithContext(ctx).
		Where("date >= ? AND date < ?", truncateDay(from), to.UTC()).
		Order("date, sku").
		Find(&out).Error
	return out, err
}

type velocityRow struct {
	SKU   string `gorm:"column:sku"`
	Units int64
}

// Velocity returns units sold per day per SKU since the given time
func (r *GormDailyProfitRepository) Velocity(ctx context.Context, since time.Time, days int) ([]profit.Velocity, error) {
	if days <= 0 {
		days = 1
	}
	var rows []velocityRow
	err := r.db.WithContext(ctx).Table("order_items AS oi").
		Select("oi.sku AS sku, SUM(oi.quantity) AS units").
		Joins("JOIN orders o ON o.amazon_order_id = oi.amazon_order_id").
		Where("o.purchase_date >= ? AND o.status <> ?", since.UTC(), sales.OrderStatusCancelled).
		Group("oi.sku").
		Order("units DESC, oi.sku").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]profit.Velocity, 0, len(rows))
	for _, row := range rows {
		out = append(out, profit.Velocity{
			SKU:         row.SKU,
			Units:       row.Units,
			Days:        days,
			UnitsPerDay: decimal.NewFromInt(row.Units).Div(decimal.NewFromInt(int64(days))).Round(2),
		})
	}
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
