package spapi

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/erp/sellersync/internal/domain/marketplace"
)

const financesPath = "/finances/v0/financialEvents"

var _ marketplace.FinancialEventFeed = (*Client)(nil)

// ListFinancialEvents returns one page of financial events posted within
// [postedAfter, postedBefore). When nextToken is set only the token is sent,
// as the vendor requires.
func (c *Client) ListFinancialEvents(ctx context.Context, postedAfter, postedBefore time.Time, nextToken string) (*marketplace.FinancialEventPage, error) {
	q := url.Values{}
	if nextToken != "" {
		q.Set("NextToken", nextToken)
	} else {
		q.Set("MaxResultsPerPage", "100")
		q.Set("PostedAfter", postedAfter.UTC().Format(time.RFC3339))
		if !postedBefore.IsZero() {
			q.Set("PostedBefore", postedBefore.UTC().Format(time.RFC3339))
		}
	}

	var resp financialEventsResponse
	if err := c.doJSON(ctx, "listFinancialEvents", http.MethodGet, financesPath, q, nil, &resp); err != nil {
		return nil, err
	}

	events := resp.Payload.FinancialEvents
	page := &marketplace.FinancialEventPage{
		NextToken: resp.Payload.NextToken,
		Shipments: make([]marketplace.FinancialEvent, 0, len(events.ShipmentEventList)),
		Refunds:   make([]marketplace.FinancialEvent, 0, len(events.RefundEventList)),
	}
	for _, ev := range events.ShipmentEventList {
		page.Shipments = append(page.Shipments, convertEvent(ev, ev.ShipmentItemList))
	}
	for _, ev := range events.RefundEventList {
		page.Refunds = append(page.Refunds, convertEvent(ev, ev.ShipmentItemAdjustmentList))
	}
	return page, nil
}

func convertEvent(ev shipmentEvent, items []shipmentItem) marketplace.FinancialEvent {
	out := marketplace.FinancialEvent{
		AmazonOrderID: ev.AmazonOrderID,
		PostedDate:    parseVendorTime(ev.PostedDate),
		Items:         make([]marketplace.FinancialEventItem, 0, len(items)),
	}
	for _, it := range items {
		item := marketplace.FinancialEventItem{
			SellerSKU: it.SellerSKU,
			Quantity:  it.QuantityShipped,
		}
		for _, ch := range append(it.ItemChargeList, it.ItemChargeAdjustmentList...) {
			item.Charges = append(item.Charges, marketplace.AmountLine{Type: ch.ChargeType, Amount: ch.ChargeAmount.CurrencyAmount})
		}
		for _, fee := range append(it.ItemFeeList, it.ItemFeeAdjustmentList...) {
			item.Fees = append(item.Fees, marketplace.AmountLine{Type: fee.FeeType, Amount: fee.FeeAmount.CurrencyAmount})
		}
		for _, p := range append(it.PromotionList, it.PromotionAdjustmentList...) {
			item.Promotions = append(item.Promotions, marketplace.AmountLine{Type: p.PromotionType, Amount: p.PromotionAmount.CurrencyAmount})
		}
		out.Items = append(out.Items, item)
	}
	return out
}
