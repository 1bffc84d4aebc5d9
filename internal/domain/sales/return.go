package sales

import (
	"time"

	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Return is a customer return of one SKU on one order.
type Return struct {
	shared.BaseEntity
	AmazonOrderID     string          `gorm:"size:64;not null;uniqueIndex:idx_returns_order_sku,priority:1"`
	SKU               string          `gorm:"size:128;not null;uniqueIndex:idx_returns_order_sku,priority:2"`
	ASIN              string          `gorm:"size:32"`
	FNSKU             string          `gorm:"size:32"`
	ReturnDate        time.Time       `gorm:"not null;index"`
	Quantity          int             `gorm:"not null;default:0"`
	Reason            string          `gorm:"size:128"`
	Disposition       string          `gorm:"size:64"`
	Status            string          `gorm:"size:64"`
	FulfillmentCenter string          `gorm:"size:16"`
	RefundAmount      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (Return) TableName() string {
	return "returns"
}

// BackfillRefund sets the refund amount only when none is recorded yet.
// Refund amounts from financial events are negative; the stored value is
// the magnitude.
func (r *Return) BackfillRefund(amount decimal.Decimal) bool {
	if !r.RefundAmount.IsZero() || amount.IsZero() {
		return false
	}
	r.RefundAmount = amount.Abs()
	return true
}
