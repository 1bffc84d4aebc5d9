package marketplace

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AmountLine is one typed money component of a financial event item, such as
// a charge ("Principal") or a fee ("FBAPerUnitFulfillmentFee").
type AmountLine struct {
	Type   string
	Amount decimal.Decimal
}

// FinancialEventItem is the per-SKU portion of a shipment or refund event.
type FinancialEventItem struct {
	SellerSKU  string
	Quantity   int
	Charges    []AmountLine
	Fees       []AmountLine
	Promotions []AmountLine
}

// FinancialEvent groups the items posted for one order at one time.
type FinancialEvent struct {
	AmazonOrderID string
	PostedDate    time.Time
	Items         []FinancialEventItem
}

// FinancialEventPage is one page of the financial event feed. An empty
// NextToken means the window is exhausted.
type FinancialEventPage struct {
	Shipments []FinancialEvent
	Refunds   []FinancialEvent
	NextToken string
}

// FinancialEventFeed pages financial events posted within a window. The
// token is opaque and may expire server-side, which surfaces as
// ErrTokenExpired.
type FinancialEventFeed interface {
	ListFinancialEvents(ctx context.Context, postedAfter, postedBefore time.Time, nextToken string) (*FinancialEventPage, error)
}
