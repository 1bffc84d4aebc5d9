package finance

import (
	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/domain/sales"
	"github.com/shopspring/decimal"
)

// ItemKey identifies an order line across financial events.
type ItemKey struct {
	OrderID string
	SKU     string
}

// Breakdown accumulates classified amounts for one ItemKey. Amounts are kept
// as posted by the vendor: charges positive, fees and promotions negative.
type Breakdown struct {
	Charges    map[ChargeCategory]decimal.Decimal
	Fees       map[FeeCategory]decimal.Decimal
	Promotions decimal.Decimal
}

func newBreakdown() *Breakdown {
	return &Breakdown{
		Charges: make(map[ChargeCategory]decimal.Decimal),
		Fees:    make(map[FeeCategory]decimal.Decimal),
	}
}

// AddItem classifies and adds every line of a financial event item.
func (b *Breakdown) AddItem(item marketplace.FinancialEventItem) {
	for _, c := range item.Charges {
		cat := ClassifyCharge(c.Type)
		b.Charges[cat] = b.Charges[cat].Add(c.Amount)
	}
	for _, f := range item.Fees {
		cat := ClassifyFee(f.Type)
		b.Fees[cat] = b.Fees[cat].Add(f.Amount)
	}
	for _, p := range item.Promotions {
		b.Promotions = b.Promotions.Add(p.Amount)
	}
}

// Add merges other into b.
func (b *Breakdown) Add(other *Breakdown) {
	for k, v := range other.Charges {
		b.Charges[k] = b.Charges[k].Add(v)
	}
	for k, v := range other.Fees {
		b.Fees[k] = b.Fees[k].Add(v)
	}
	b.Promotions = b.Promotions.Add(other.Promotions)
}

// Financials converts the breakdown into the positive-amount form applied to
// order items.
func (b *Breakdown) Financials() sales.Financials {
	return sales.Financials{
		ItemPrice:         b.Charges[ChargeItemPrice],
		ShippingPrice:     b.Charges[ChargeShipping],
		GiftWrapPrice:     b.Charges[ChargeGiftWrap],
		PromotionDiscount: b.Promotions.Abs(),
		ReferralFee:       b.Fees[FeeReferral].Abs(),
		FulfillmentFee:    b.Fees[FeeFulfillment].Abs(),
		WeightHandlingFee: b.Fees[FeeWeightHandling].Abs(),
		ClosingFee:        b.Fees[FeeClosing].Abs(),
		OtherFees:         b.Fees[FeeOther].Abs(),
	}
}

// RefundTotal is the net amount of a refund breakdown (negative when money
// went back to the buyer).
func (b *Breakdown) RefundTotal() decimal.Decimal {
	total := b.Promotions
	for _, v := range b.Charges {
		total = total.Add(v)
	}
	return total
}

// Accumulator aggregates financial events per ItemKey. Contributions are
// tracked per window so a window can be discarded and replayed after a
// restart without double counting. Keys touched since the last Drain are
// reported as dirty.
type Accumulator struct {
	windows map[int]map[ItemKey]*Breakdown
	dirty   map[ItemKey]struct{}
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		windows: make(map[int]map[ItemKey]*Breakdown),
		dirty:   make(map[ItemKey]struct{}),
	}
}

// AddEvent adds every item of ev to the given window.
func (a *Accumulator) AddEvent(window int, ev marketplace.FinancialEvent) {
	for _, item := range ev.Items {
		if ev.AmazonOrderID == "" || item.SellerSKU == "" {
			continue
		}
		key := ItemKey{OrderID: ev.AmazonOrderID, SKU: item.SellerSKU}
		w, ok := a.windows[window]
		if !ok {
			w = make(map[ItemKey]*Breakdown)
			a.windows[window] = w
		}
		b, ok := w[key]
		if !ok {
			b = newBreakdown()
			w[key] = b
		}
		b.AddItem(item)
		a.dirty[key] = struct{}{}
	}
}

// ResetWindow discards everything contributed by window. Keys it touched are
// marked dirty so their corrected totals are flushed again.
func (a *Accumulator) ResetWindow(window int) {
	for key := range a.windows[window] {
		a.dirty[key] = struct{}{}
	}
	delete(a.windows, window)
}

// DirtyCount returns the number of keys awaiting a flush.
func (a *Accumulator) DirtyCount() int {
	return len(a.dirty)
}

// Total returns the run-cumulative breakdown for key across all windows.
func (a *Accumulator) Total(key ItemKey) *Breakdown {
	total := newBreakdown()
	for _, w := range a.windows {
		if b, ok := w[key]; ok {
			total.Add(b)
		}
	}
	return total
}

// Drain returns the cumulative breakdown of every dirty key and clears the
// dirty set.
func (a *Accumulator) Drain() map[ItemKey]*Breakdown {
	out := make(map[ItemKey]*Breakdown, len(a.dirty))
	for key := range a.dirty {
		out[key] = a.Total(key)
	}
	a.dirty = make(map[ItemKey]struct{})
	return out
}

// Restore marks keys dirty again, used when a flush failed.
func (a *Accumulator) Restore(keys []ItemKey) {
	for _, k := range keys {
		a.dirty[k] = struct{}{}
	}
}
