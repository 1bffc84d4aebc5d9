package marketplace

import (
	"context"
	"time"
)

// InboundShipment is an FBA inbound shipment as reported by the vendor.
type InboundShipment struct {
	ShipmentID          string
	Name                string
	Status              string
	DestinationCenterID string
	LastUpdated         time.Time
}

// InboundShipmentItem is one SKU line of an inbound shipment.
type InboundShipmentItem struct {
	ShipmentID       string
	SellerSKU        string
	FNSKU            string
	QuantityShipped  int64
	QuantityReceived int64
}

// InboundShipmentPage is one page of shipments.
type InboundShipmentPage struct {
	Shipments []InboundShipment
	NextToken string
}

// ShipmentFeed lists FBA inbound shipments and their items.
type ShipmentFeed interface {
	ListInboundShipments(ctx context.Context, updatedAfter, updatedBefore time.Time, nextToken string) (*InboundShipmentPage, error)
	ListInboundShipmentItems(ctx context.Context, shipmentID string) ([]InboundShipmentItem, error)
}

// InventorySummary is the FBA-side stock position of one SKU.
type InventorySummary struct {
	SellerSKU     string
	FNSKU         string
	ASIN          string
	ProductName   string
	Fulfillable   int64
	Inbound       int64
	Reserved      int64
	Unfulfillable int64
	LastUpdated   time.Time
}

// InventorySummaryPage is one page of inventory summaries.
type InventorySummaryPage struct {
	Summaries []InventorySummary
	NextToken string
}

// InventoryFeed lists FBA inventory summaries.
type InventoryFeed interface {
	ListInventorySummaries(ctx context.Context, nextToken string) (*InventorySummaryPage, error)
}
