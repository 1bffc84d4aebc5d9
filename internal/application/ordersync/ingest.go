package ordersync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erp/sellersync/internal/domain/catalog"
	"github.com/erp/sellersync/internal/domain/sales"
	"github.com/erp/sellersync/internal/domain/syncrun"
	"github.com/erp/sellersync/internal/infrastructure/reportparser"
	"go.uber.org/zap"
)

var errMissingPurchaseDate = errors.New("order row has no purchase date")

// orderGroup is every report row of one order folded into a header and one
// item per distinct SKU, in first-seen order.
type orderGroup struct {
	order *sales.Order
	items []*sales.OrderItem
}

// Ingestor turns an orders report document into upserted orders, items and
// placeholder products.
type Ingestor struct {
	orders   sales.OrderRepository
	products catalog.ProductRepository
	logger   *zap.Logger
}

// NewIngestor creates a new Ingestor
func NewIngestor(orders sales.OrderRepository, products catalog.ProductRepository, logger *zap.Logger) *Ingestor {
	return &Ingestor{orders: orders, products: products, logger: logger}
}

// Parse maps raw into order groups. Rows without an order id or SKU are
// counted as skipped.
func (i *Ingestor) Parse(raw []byte) ([]*orderGroup, int, error) {
	table, err := reportparser.Parse(raw)
	if err != nil {
		return nil, 0, err
	}
	ext := reportparser.OrdersReport.Extract(table)

	var groups []*orderGroup
	byID := make(map[string]*orderGroup)
	for _, rec := range ext.Records {
		id := strings.TrimSpace(rec.Get(reportparser.FieldOrderID))
		g, ok := byID[id]
		if !ok {
			g = &orderGroup{order: orderFromRecord(id, rec)}
			byID[id] = g
			groups = append(groups, g)
		}
		item := itemFromRecord(id, rec)
		merged := false
		for _, existing := range g.items {
			if existing.SKU == item.SKU {
				existing.Merge(item)
				merged = true
				break
			}
		}
		if !merged {
			g.items = append(g.items, item)
		}
	}
	return groups, ext.Skipped, nil
}

// Upsert writes every group. A failing order is logged and counted; it
// does not stop the others. Only context errors abort.
func (i *Ingestor) Upsert(ctx context.Context, groups []*orderGroup) (syncrun.Counters, error) {
	var c syncrun.Counters
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return c, err
		}
		c.Processed++
		created, err := i.upsertGroup(ctx, g)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return c, ctxErr
			}
			c.Failed++
			i.logger.Warn("Failed to upsert order",
				zap.String("amazon_order_id", g.order.AmazonOrderID),
				zap.Error(err),
			)
			continue
		}
		if created {
			c.Created++
		} else {
			c.Updated++
		}
	}
	return c, nil
}

// Ingest parses and upserts one report document.
func (i *Ingestor) Ingest(ctx context.Context, raw []byte) (syncrun.Counters, error) {
	groups, skipped, err := i.Parse(raw)
	if err != nil {
		return syncrun.Counters{}, err
	}
	c, err := i.Upsert(ctx, groups)
	c.Skipped += skipped
	return c, err
}

func (i *Ingestor) upsertGroup(ctx context.Context, g *orderGroup) (bool, error) {
	if g.order.PurchaseDate.IsZero() {
		return false, errMissingPurchaseDate
	}
	created, err := i.orders.UpsertOrder(ctx, g.order)
	if err != nil {
		return false, fmt.Errorf("upsert order: %w", err)
	}
	for _, item := range g.items {
		if _, err := i.orders.UpsertItem(ctx, item); err != nil {
			return created, fmt.Errorf("upsert item %s: %w", item.SKU, err)
		}
		if _, err := i.products.EnsureExists(ctx, catalog.NewPlaceholder(item.SKU, item.ASIN, item.Title)); err != nil {
			return created, fmt.Errorf("ensure product %s: %w", item.SKU, err)
		}
	}
	return created, nil
}

func orderFromRecord(id string, rec reportparser.Record) *sales.Order {
	purchased, _ := rec.Time(reportparser.FieldPurchaseDate)
	updated, ok := rec.Time(reportparser.FieldLastUpdated)
	if !ok {
		updated = purchased
	}
	status, _ := sales.ParseOrderStatus(rec.Get(reportparser.FieldOrderStatus))
	order := &sales.Order{
		AmazonOrderID:      id,
		PurchaseDate:       purchased,
		LastUpdatedDate:    updated,
		Status:             status,
		FulfillmentChannel: sales.ParseFulfillmentChannel(rec.Get(reportparser.FieldFulfillmentChannel)),
		SalesChannel:       rec.Get(reportparser.FieldSalesChannel),
		ShipTo: sales.ShipTo{
			City:       rec.Get(reportparser.FieldShipCity),
			State:      rec.Get(reportparser.FieldShipState),
			PostalCode: rec.Get(reportparser.FieldShipPostalCode),
			Country:    rec.Get(reportparser.FieldShipCountry),
		},
	}
	if shipped, ok := rec.Time(reportparser.FieldShipDate); ok {
		order.ShipDate = &shipped
	}
	return order
}

func itemFromRecord(id string, rec reportparser.Record) *sales.OrderItem {
	promotions := rec.Decimal(reportparser.FieldItemPromotionDiscount).Abs().
		Add(rec.Decimal(reportparser.FieldShipPromotionDiscount).Abs())
	item := &sales.OrderItem{
		AmazonOrderID:     id,
		SKU:               strings.TrimSpace(rec.Get(reportparser.FieldSKU)),
		ASIN:              rec.Get(reportparser.FieldASIN),
		Title:             rec.Get(reportparser.FieldTitle),
		Quantity:          rec.Int(reportparser.FieldQuantity),
		ItemPrice:         rec.Decimal(reportparser.FieldItemPrice),
		ItemTax:           rec.Decimal(reportparser.FieldItemTax),
		ShippingPrice:     rec.Decimal(reportparser.FieldShippingPrice),
		ShippingTax:       rec.Decimal(reportparser.FieldShippingTax),
		GiftWrapPrice:     rec.Decimal(reportparser.FieldGiftWrapPrice),
		GiftWrapTax:       rec.Decimal(reportparser.FieldGiftWrapTax),
		PromotionDiscount: promotions,
		FeesSource:        sales.FeesSourceNone,
	}
	item.RecomputeGrossRevenue()
	return item
}
