package fulfillment

import "github.com/google/uuid"

// DeductionLine is the planned effect of one shipment item on local stock.
type DeductionLine struct {
	SellerSKU      string `json:"seller_sku"`
	FNSKU          string `json:"fnsku,omitempty"`
	MatchedSKU     string `json:"matched_sku,omitempty"`
	Shipped        int64  `json:"shipped"`
	QuantityBefore int64  `json:"quantity_before"`
	QuantityAfter  int64  `json:"quantity_after"`
	Skipped        bool   `json:"skipped"`
	SkipReason     string `json:"skip_reason,omitempty"`
}

// Delta returns the signed change this line makes.
func (l DeductionLine) Delta() int64 {
	return l.QuantityAfter - l.QuantityBefore
}

// Plan is the outcome of reconciling a shipment, either previewed or
// applied. It has the same shape in both cases.
type Plan struct {
	ShipmentID  string               `json:"shipment_id"`
	Action      Action               `json:"action"`
	From        ReconciliationStatus `json:"from"`
	To          ReconciliationStatus `json:"to"`
	WarehouseID uuid.UUID            `json:"warehouse_id,omitempty"`
	Lines       []DeductionLine      `json:"lines,omitempty"`
	Applied     bool                 `json:"applied"`
	// AlreadyDeducted is set when an idempotent deduction found the
	// shipment's adjustments already written and did nothing.
	AlreadyDeducted bool `json:"already_deducted,omitempty"`
}

// SkippedLines counts lines that produced no stock movement.
func (p *Plan) SkippedLines() int {
	n := 0
	for _, l := range p.Lines {
		if l.Skipped {
			n++
		}
	}
	return n
}
