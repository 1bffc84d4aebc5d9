package spapi

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/erp/sellersync/internal/domain/marketplace"
)

const (
	inboundShipmentsPath   = "/fba/inbound/v0/shipments"
	inventorySummariesPath = "/fba/inventory/v1/summaries"
)

// Shipment statuses worth mirroring locally.
const inboundShipmentStatuses = "WORKING,READY_TO_SHIP,SHIPPED,IN_TRANSIT,DELIVERED,CHECKED_IN,RECEIVING,CLOSED"

var (
	_ marketplace.ShipmentFeed  = (*Client)(nil)
	_ marketplace.InventoryFeed = (*Client)(nil)
)

// ListInboundShipments returns one page of inbound shipments updated within
// the window.
func (c *Client) ListInboundShipments(ctx context.Context, updatedAfter, updatedBefore time.Time, nextToken string) (*marketplace.InboundShipmentPage, error) {
	q := url.Values{}
	q.Set("MarketplaceId", c.config.MarketplaceID)
	if nextToken != "" {
		q.Set("QueryType", "NEXT_TOKEN")
		q.Set("NextToken", nextToken)
	} else {
		q.Set("QueryType", "DATE_RANGE")
		q.Set("ShipmentStatusList", inboundShipmentStatuses)
		q.Set("LastUpdatedAfter", updatedAfter.UTC().Format(time.RFC3339))
		q.Set("LastUpdatedBefore", updatedBefore.UTC().Format(time.RFC3339))
	}

	var resp inboundShipmentsResponse
	if err := c.doJSON(ctx, "getShipments", http.MethodGet, inboundShipmentsPath, q, nil, &resp); err != nil {
		return nil, err
	}

	page := &marketplace.InboundShipmentPage{NextToken: resp.Payload.NextToken}
	for _, s := range resp.Payload.ShipmentData {
		page.Shipments = append(page.Shipments, marketplace.InboundShipment{
			ShipmentID:          s.ShipmentID,
			Name:                s.ShipmentName,
			Status:              s.ShipmentStatus,
			DestinationCenterID: s.DestinationFulfillmentCenterID,
		})
	}
	return page, nil
}

// ListInboundShipmentItems returns every item of a shipment, following
// pagination.
func (c *Client) ListInboundShipmentItems(ctx context.Context, shipmentID string) ([]marketplace.InboundShipmentItem, error) {
	var items []marketplace.InboundShipmentItem
	token := ""
	for {
		q := url.Values{}
		q.Set("MarketplaceId", c.config.MarketplaceID)
		if token != "" {
			q.Set("NextToken", token)
		}

		var resp inboundShipmentItemsResponse
		path := inboundShipmentsPath + "/" + url.PathEscape(shipmentID) + "/items"
		if err := c.doJSON(ctx, "getShipmentItemsByShipmentId", http.MethodGet, path, q, nil, &resp); err != nil {
			return nil, err
		}
		for _, it := range resp.Payload.ItemData {
			items = append(items, marketplace.InboundShipmentItem{
				ShipmentID:       shipmentID,
				SellerSKU:        it.SellerSKU,
				FNSKU:            it.FulfillmentNetworkSKU,
				QuantityShipped:  it.QuantityShipped,
				QuantityReceived: it.QuantityReceived,
			})
		}
		if resp.Payload.NextToken == "" {
			return items, nil
		}
		token = resp.Payload.NextToken
	}
}

// ListInventorySummaries returns one page of FBA inventory summaries for
// the configured marketplace.
func (c *Client) ListInventorySummaries(ctx context.Context, nextToken string) (*marketplace.InventorySummaryPage, error) {
	q := url.Values{}
	q.Set("details", "true")
	q.Set("granularityType", "Marketplace")
	q.Set("granularityId", c.config.MarketplaceID)
	q.Set("marketplaceIds", c.config.MarketplaceID)
	if nextToken != "" {
		q.Set("nextToken", nextToken)
	}

	var resp inventorySummariesResponse
	if err := c.doJSON(ctx, "getInventorySummaries", http.MethodGet, inventorySummariesPath, q, nil, &resp); err != nil {
		return nil, err
	}

	page := &marketplace.InventorySummaryPage{NextToken: resp.Pagination.NextToken}
	for _, s := range resp.Payload.InventorySummaries {
		d := s.Details
		page.Summaries = append(page.Summaries, marketplace.InventorySummary{
			SellerSKU:     s.SellerSKU,
			FNSKU:         s.FNSKU,
			ASIN:          s.ASIN,
			ProductName:   s.ProductName,
			Fulfillable:   d.FulfillableQuantity,
			Inbound:       d.InboundWorkingQuantity + d.InboundShippedQuantity + d.InboundReceivingQuantity,
			Reserved:      d.ReservedQuantity.TotalReservedQuantity,
			Unfulfillable: d.UnfulfillableQuantity.TotalUnfulfillableQuantity,
			LastUpdated:   parseVendorTime(s.LastUpdatedTime),
		})
	}
	return page, nil
}
