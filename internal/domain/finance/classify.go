package finance

import "strings"

// FeeCategory is the bucket a vendor fee type is booked into.
type FeeCategory string

const (
	FeeReferral       FeeCategory = "referral"
	FeeFulfillment    FeeCategory = "fulfillment"
	FeeWeightHandling FeeCategory = "weight_handling"
	FeeClosing        FeeCategory = "closing"
	FeeOther          FeeCategory = "other"
)

// ChargeCategory is the bucket a vendor charge type is booked into. Taxes are
// folded into the category they are levied on.
type ChargeCategory string

const (
	ChargeItemPrice ChargeCategory = "item_price"
	ChargeShipping  ChargeCategory = "shipping"
	ChargeGiftWrap  ChargeCategory = "gift_wrap"
	ChargeOther     ChargeCategory = "other"
)

type rule[C any] struct {
	substrings []string
	category   C
}

// Ordered: the first rule with a matching substring wins, so the more
// specific names come first ("FBAWeightBasedFee" is weight handling, not
// fulfillment).
var feeRules = []rule[FeeCategory]{
	{[]string{"closing"}, FeeClosing},
	{[]string{"weight"}, FeeWeightHandling},
	{[]string{"commission", "referral"}, FeeReferral},
	{[]string{"fulfillment", "fulfilment", "fba", "pickpack", "pick&pack"}, FeeFulfillment},
}

var chargeRules = []rule[ChargeCategory]{
	{[]string{"giftwrap", "gift-wrap", "gift_wrap"}, ChargeGiftWrap},
	{[]string{"shipping"}, ChargeShipping},
	{[]string{"principal", "tax"}, ChargeItemPrice},
}

// ClassifyFee maps a vendor fee type onto a FeeCategory by case-insensitive
// substring match.
func ClassifyFee(feeType string) FeeCategory {
	return classify(feeType, feeRules, FeeOther)
}

// ClassifyCharge maps a vendor charge type onto a ChargeCategory by
// case-insensitive substring match.
func ClassifyCharge(chargeType string) ChargeCategory {
	return classify(chargeType, chargeRules, ChargeOther)
}

func classify[C any](raw string, rules []rule[C], fallback C) C {
	key := strings.ToLower(raw)
	for _, r := range rules {
		for _, s := range r.substrings {
			if strings.Contains(key, s) {
				return r.category
			}
		}
	}
	return fallback
}
