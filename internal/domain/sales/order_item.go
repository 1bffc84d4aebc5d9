package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeesSource records where the fee columns of an order item came from.
type FeesSource string

const (
	FeesSourceNone            FeesSource = "none"
	FeesSourceReport          FeesSource = "report"
	FeesSourceFinancialEvents FeesSource = "financial_events"
)

// OrderItem is one SKU line of an order. The pair (AmazonOrderID, SKU) is the
// natural key; repeated report rows for the same pair are merged before the
// item is written.
type OrderItem struct {
	AmazonOrderID     string          `gorm:"primaryKey;size:64"`
	SKU               string          `gorm:"primaryKey;size:128"`
	ASIN              string          `gorm:"size:32"`
	Title             string          `gorm:"size:512"`
	Quantity          int             `gorm:"not null;default:0"`
	ItemPrice         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ItemTax           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ShippingPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ShippingTax       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	GiftWrapPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	GiftWrapTax       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	PromotionDiscount decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ReferralFee       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	FulfillmentFee    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	WeightHandlingFee decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ClosingFee        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	OtherFees         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	TotalFees         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	GrossRevenue      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ActualRevenue     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	FeesSource        FeesSource      `gorm:"size:32;not null;default:'none'"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName returns the table name for GORM
func (OrderItem) TableName() string {
	return "order_items"
}

// RecomputeGrossRevenue sets GrossRevenue to charges minus discounts.
func (i *OrderItem) RecomputeGrossRevenue() {
	i.GrossRevenue = i.ItemPrice.
		Add(i.ShippingPrice).
		Add(i.GiftWrapPrice).
		Sub(i.PromotionDiscount)
}

// Merge folds another report row for the same (order, SKU) into i.
// Quantities and amounts are summed.
func (i *OrderItem) Merge(other *OrderItem) {
	i.Quantity += other.Quantity
	i.ItemPrice = i.ItemPrice.Add(other.ItemPrice)
	i.ItemTax = i.ItemTax.Add(other.ItemTax)
	i.ShippingPrice = i.ShippingPrice.Add(other.ShippingPrice)
	i.ShippingTax = i.ShippingTax.Add(other.ShippingTax)
	i.GiftWrapPrice = i.GiftWrapPrice.Add(other.GiftWrapPrice)
	i.GiftWrapTax = i.GiftWrapTax.Add(other.GiftWrapTax)
	i.PromotionDiscount = i.PromotionDiscount.Add(other.PromotionDiscount)
	if i.ASIN == "" {
		i.ASIN = other.ASIN
	}
	if i.Title == "" {
		i.Title = other.Title
	}
	i.RecomputeGrossRevenue()
}

// Financials is the fee and revenue breakdown derived from settled financial
// events for one (order, SKU) pair. Fees are positive amounts.
type Financials struct {
	ItemPrice         decimal.Decimal
	ShippingPrice     decimal.Decimal
	GiftWrapPrice     decimal.Decimal
	PromotionDiscount decimal.Decimal
	ReferralFee       decimal.Decimal
	FulfillmentFee    decimal.Decimal
	WeightHandlingFee decimal.Decimal
	ClosingFee        decimal.Decimal
	OtherFees         decimal.Decimal
}

// TotalFees sums every fee category.
func (f Financials) TotalFees() decimal.Decimal {
	return f.ReferralFee.Add(f.FulfillmentFee).Add(f.WeightHandlingFee).Add(f.ClosingFee).Add(f.OtherFees)
}

// Revenue is charges minus promotions.
func (f Financials) Revenue() decimal.Decimal {
	return f.ItemPrice.Add(f.ShippingPrice).Add(f.GiftWrapPrice).Sub(f.PromotionDiscount)
}

// IsZero reports whether the breakdown carries no information at all.
func (f Financials) IsZero() bool {
	return f.TotalFees().IsZero() && f.ItemPrice.IsZero() && f.ShippingPrice.IsZero() &&
		f.GiftWrapPrice.IsZero() && f.PromotionDiscount.IsZero()
}

// ApplyFinancials refines the item with settled amounts. A field only moves
// to a non-zero value; a zero in f never overwrites a value already known.
// It returns true if anything changed.
func (i *OrderItem) ApplyFinancials(f Financials) bool {
	changed := false
	refine := func(dst *decimal.Decimal, v decimal.Decimal) {
		if v.IsZero() || dst.Equal(v) {
			return
		}
		*dst = v
		changed = true
	}

	refine(&i.ReferralFee, f.ReferralFee)
	refine(&i.FulfillmentFee, f.FulfillmentFee)
	refine(&i.WeightHandlingFee, f.WeightHandlingFee)
	refine(&i.ClosingFee, f.ClosingFee)
	refine(&i.OtherFees, f.OtherFees)
	refine(&i.ActualRevenue, f.Revenue())

	total := i.ReferralFee.Add(i.FulfillmentFee).Add(i.WeightHandlingFee).Add(i.ClosingFee).Add(i.OtherFees)
	refine(&i.TotalFees, total)

	if changed && !f.TotalFees().IsZero() {
		i.FeesSource = FeesSourceFinancialEvents
	}
	return changed
}
