package sales

import (
	"strings"
	"time"
)

// OrderStatus is the closed set of order states kept locally. Vendor strings
// are mapped through ParseOrderStatus.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "Pending"
	OrderStatusUnshipped        OrderStatus = "Unshipped"
	OrderStatusPartiallyShipped OrderStatus = "PartiallyShipped"
	OrderStatusShipped          OrderStatus = "Shipped"
	OrderStatusDelivered        OrderStatus = "Delivered"
	OrderStatusCancelled        OrderStatus = "Cancelled"
	OrderStatusReturned         OrderStatus = "Returned"
)

// IsValid returns true if the status is one of the known values
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusUnshipped, OrderStatusPartiallyShipped,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	return string(s)
}

// ParseOrderStatus maps a vendor status string onto the closed enum. The
// comparison ignores case, spaces, dashes and underscores. Anything
// unrecognized maps to Pending; the second return value reports whether the
// input was recognized.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	key := strings.ToLower(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.TrimSpace(raw)))
	switch key {
	case "pending", "pendingavailability":
		return OrderStatusPending, true
	case "unshipped":
		return OrderStatusUnshipped, true
	case "partiallyshipped":
		return OrderStatusPartiallyShipped, true
	case "shipped", "shipping":
		return OrderStatusShipped, true
	case "delivered", "complete", "completed", "invoiceunconfirmed":
		return OrderStatusDelivered, true
	case "cancelled", "canceled":
		return OrderStatusCancelled, true
	case "returned", "refunded":
		return OrderStatusReturned, true
	default:
		return OrderStatusPending, false
	}
}

// FulfillmentChannel distinguishes vendor-fulfilled from merchant-fulfilled orders.
type FulfillmentChannel string

const (
	FulfillmentChannelFBA FulfillmentChannel = "AFN"
	FulfillmentChannelMFN FulfillmentChannel = "MFN"
)

// ParseFulfillmentChannel maps report values ("Amazon", "AFN", "Merchant",
// "MFN") onto the enum. Unknown values default to merchant fulfilled.
func ParseFulfillmentChannel(raw string) FulfillmentChannel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "amazon", "afn", "fba", "amazon.com":
		return FulfillmentChannelFBA
	default:
		return FulfillmentChannelMFN
	}
}

// ShipTo is the coarse shipping destination carried on order reports.
type ShipTo struct {
	City       string `gorm:"size:128"`
	State      string `gorm:"size:64"`
	PostalCode string `gorm:"size:32"`
	Country    string `gorm:"size:8"`
}

// Order is the local order header, keyed by the vendor order id.
type Order struct {
	AmazonOrderID      string             `gorm:"primaryKey;size:64"`
	PurchaseDate       time.Time          `gorm:"not null;index"`
	LastUpdatedDate    time.Time          `gorm:"not null"`
	Status             OrderStatus        `gorm:"size:32;not null;index"`
	FulfillmentChannel FulfillmentChannel `gorm:"size:8;not null"`
	SalesChannel       string             `gorm:"size:64"`
	ShipTo             ShipTo             `gorm:"embedded;embeddedPrefix:ship_"`
	ShipDate           *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TableName returns the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// IsCancelled returns true for orders excluded from profit.
func (o *Order) IsCancelled() bool {
	return o.Status == OrderStatusCancelled
}
