package profit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DailyProfit is the per-day, per-SKU profit projection. It is derived
// entirely from orders, order items and product costs and can be rebuilt at
// any time.
type DailyProfit struct {
	Date                 time.Time       `gorm:"primaryKey;type:date" json:"date"`
	SKU                  string          `gorm:"primaryKey;size:128" json:"sku"`
	Units                int64           `gorm:"not null;default:0" json:"units"`
	Revenue              decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"revenue"`
	AmazonFees           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"amazon_fees"`
	COGS                 decimal.Decimal `gorm:"column:cogs;type:decimal(18,4);not null;default:0" json:"cogs"`
	PromotionalDiscounts decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"promotional_discounts"`
	GrossProfit          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"gross_profit"`
	NetProfit            decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"net_profit"`
	MarginPercent        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"margin_percent"`
}

// TableName returns the table name for GORM
func (DailyProfit) TableName() string {
	return "daily_profits"
}

var (
	hundred = decimal.NewFromInt(100)
	// marginLimit keeps near-zero revenue days inside the column's precision.
	marginLimit = decimal.New(1, 12)
)

// Derive fills the computed columns from the summed inputs.
func (d *DailyProfit) Derive() {
	d.GrossProfit = d.Revenue.Sub(d.COGS)
	d.NetProfit = d.GrossProfit.Sub(d.AmazonFees)
	if d.Revenue.IsZero() {
		d.MarginPercent = decimal.Zero
		return
	}
	margin := d.NetProfit.Div(d.Revenue).Mul(hundred).Round(4)
	switch {
	case margin.GreaterThan(marginLimit):
		margin = marginLimit
	case margin.LessThan(marginLimit.Neg()):
		margin = marginLimit.Neg()
	}
	d.MarginPercent = margin
}

// Velocity is the average units sold per day of a SKU over a lookback.
type Velocity struct {
	SKU         string          `json:"sku"`
	Units       int64           `json:"units"`
	Days        int             `json:"days"`
	UnitsPerDay decimal.Decimal `json:"units_per_day"`
}

// Repository persists and rebuilds the profit projection.
type Repository interface {
	// Rebuild replaces every row with a date in [from, to) by re-aggregating
	// the source tables. It returns the number of rows written.
	Rebuild(ctx context.Context, from, to time.Time) (int, error)
	List(ctx context.Context, from, to time.Time) ([]DailyProfit, error)
	Velocity(ctx context.Context, since time.Time, days int) ([]Velocity, error)
}

// Exporter ships projection rows to an analytics store.
type Exporter interface {
	Export(ctx context.Context, rows []DailyProfit) (int, error)
}
