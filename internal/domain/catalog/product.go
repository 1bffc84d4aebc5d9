package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is the local catalog entry for a seller SKU.
type Product struct {
	SKU         string          `gorm:"primaryKey;size:128"`
	ASIN        string          `gorm:"size:32;index"`
	FNSKU       string          `gorm:"size:32;index"`
	Title       string          `gorm:"size:512"`
	Cost        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Price       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Active      bool            `gorm:"not null"`
	Hidden      bool            `gorm:"not null;default:false"`
	Placeholder bool            `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// NewPlaceholder creates the stand-in product recorded when an order
// references a SKU the catalog has never seen. It is inactive and has zero
// cost until someone fills it in.
func NewPlaceholder(sku, asin, title string) *Product {
	return &Product{
		SKU:         strings.TrimSpace(sku),
		ASIN:        strings.TrimSpace(asin),
		Title:       strings.TrimSpace(title),
		Cost:        decimal.Zero,
		Price:       decimal.Zero,
		Active:      false,
		Placeholder: true,
	}
}

// BackfillIdentifiers fills ASIN, FNSKU and title where they are empty.
// It returns true if anything changed.
func (p *Product) BackfillIdentifiers(asin, fnsku, title string) bool {
	changed := false
	if p.ASIN == "" && asin != "" {
		p.ASIN = asin
		changed = true
	}
	if p.FNSKU == "" && fnsku != "" {
		p.FNSKU = fnsku
		changed = true
	}
	if p.Title == "" && title != "" {
		p.Title = title
		changed = true
	}
	return changed
}
