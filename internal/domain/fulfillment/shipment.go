package fulfillment

import (
	"time"

	"github.com/google/uuid"
)

// ReconciliationStatus tracks what the seller has done about a shipment's
// effect on local warehouse stock.
//
//	pending  -> accepted   (acknowledged, no stock effect)
//	pending  -> deducted   (local stock reduced, irreversible)
//	accepted -> pending    (acknowledgement withdrawn)
type ReconciliationStatus string

const (
	ReconciliationPending  ReconciliationStatus = "pending"
	ReconciliationAccepted ReconciliationStatus = "accepted"
	ReconciliationDeducted ReconciliationStatus = "deducted"
)

// IsValid returns true if the status is one of the known values
func (s ReconciliationStatus) IsValid() bool {
	switch s {
	case ReconciliationPending, ReconciliationAccepted, ReconciliationDeducted:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once no further transition is possible
func (s ReconciliationStatus) IsTerminal() bool {
	return s == ReconciliationDeducted
}

func (s ReconciliationStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s ReconciliationStatus) CanTransitionTo(next ReconciliationStatus) bool {
	switch s {
	case ReconciliationPending:
		return next == ReconciliationAccepted || next == ReconciliationDeducted
	case ReconciliationAccepted:
		return next == ReconciliationPending
	default:
		return false
	}
}

// Action is a reconciliation decision requested by the seller.
type Action string

const (
	ActionAccept Action = "accept"
	ActionDeduct Action = "deduct"
)

// Target returns the status an action moves a shipment to.
func (a Action) Target() (ReconciliationStatus, error) {
	switch a {
	case ActionAccept:
		return ReconciliationAccepted, nil
	case ActionDeduct:
		return ReconciliationDeducted, nil
	default:
		return "", ErrUnknownAction
	}
}

// Shipment is an FBA inbound shipment mirrored from the vendor.
type Shipment struct {
	ShipmentID           string               `gorm:"primaryKey;size:64"`
	Name                 string               `gorm:"size:256"`
	VendorStatus         string               `gorm:"size:32"`
	DestinationCenterID  string               `gorm:"size:16"`
	VendorUpdatedAt      time.Time            `gorm:"index"`
	ReconciliationStatus ReconciliationStatus `gorm:"size:16;not null;default:'pending';index"`
	ReconciledAt         *time.Time
	WarehouseID          *uuid.UUID     `gorm:"type:uuid"`
	Items                []ShipmentItem `gorm:"foreignKey:ShipmentID;references:ShipmentID"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TableName returns the table name for GORM
func (Shipment) TableName() string {
	return "fba_shipments"
}

// TotalShipped sums shipped quantities across items.
func (s *Shipment) TotalShipped() int64 {
	var total int64
	for _, it := range s.Items {
		total += it.QuantityShipped
	}
	return total
}

// ShipmentItem is one SKU line of a shipment.
type ShipmentItem struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	ShipmentID       string    `gorm:"size:64;not null;uniqueIndex:idx_fba_shipment_items_sku,priority:1"`
	SellerSKU        string    `gorm:"size:128;not null;uniqueIndex:idx_fba_shipment_items_sku,priority:2"`
	FNSKU            string    `gorm:"size:32"`
	QuantityShipped  int64     `gorm:"not null;default:0"`
	QuantityReceived int64     `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName returns the table name for GORM
func (ShipmentItem) TableName() string {
	return "fba_shipment_items"
}
