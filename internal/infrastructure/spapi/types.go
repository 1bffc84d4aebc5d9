package spapi

import "github.com/shopspring/decimal"

// Wire types for the v0 finances, FBA inbound and FBA inventory APIs.

type money struct {
	CurrencyCode   string          `json:"CurrencyCode"`
	CurrencyAmount decimal.Decimal `json:"CurrencyAmount"`
}

type chargeComponent struct {
	ChargeType   string `json:"ChargeType"`
	ChargeAmount money  `json:"ChargeAmount"`
}

type feeComponent struct {
	FeeType   string `json:"FeeType"`
	FeeAmount money  `json:"FeeAmount"`
}

type promotion struct {
	PromotionType   string `json:"PromotionType"`
	PromotionID     string `json:"PromotionId"`
	PromotionAmount money  `json:"PromotionAmount"`
}

type shipmentItem struct {
	SellerSKU       string            `json:"SellerSKU"`
	OrderItemID     string            `json:"OrderItemId"`
	QuantityShipped int               `json:"QuantityShipped"`
	ItemChargeList  []chargeComponent `json:"ItemChargeList"`
	ItemFeeList     []feeComponent    `json:"ItemFeeList"`
	PromotionList   []promotion       `json:"PromotionList"`

	ItemChargeAdjustmentList []chargeComponent `json:"ItemChargeAdjustmentList"`
	ItemFeeAdjustmentList    []feeComponent    `json:"ItemFeeAdjustmentList"`
	PromotionAdjustmentList  []promotion       `json:"PromotionAdjustmentList"`
}

type shipmentEvent struct {
	AmazonOrderID              string         `json:"AmazonOrderId"`
	SellerOrderID              string         `json:"SellerOrderId"`
	MarketplaceName            string         `json:"MarketplaceName"`
	PostedDate                 string         `json:"PostedDate"`
	ShipmentItemList           []shipmentItem `json:"ShipmentItemList"`
	ShipmentItemAdjustmentList []shipmentItem `json:"ShipmentItemAdjustmentList"`
}

type financialEvents struct {
	ShipmentEventList []shipmentEvent `json:"ShipmentEventList"`
	RefundEventList   []shipmentEvent `json:"RefundEventList"`
}

type financialEventsResponse struct {
	Payload struct {
		NextToken       string          `json:"NextToken"`
		FinancialEvents financialEvents `json:"FinancialEvents"`
	} `json:"payload"`
}

type inboundShipmentInfo struct {
	ShipmentID                     string `json:"ShipmentId"`
	ShipmentName                   string `json:"ShipmentName"`
	ShipmentStatus                 string `json:"ShipmentStatus"`
	DestinationFulfillmentCenterID string `json:"DestinationFulfillmentCenterId"`
}

type inboundShipmentsResponse struct {
	Payload struct {
		ShipmentData []inboundShipmentInfo `json:"ShipmentData"`
		NextToken    string                `json:"NextToken"`
	} `json:"payload"`
}

type inboundShipmentItem struct {
	ShipmentID            string `json:"ShipmentId"`
	SellerSKU             string `json:"SellerSKU"`
	FulfillmentNetworkSKU string `json:"FulfillmentNetworkSKU"`
	QuantityShipped       int64  `json:"QuantityShipped"`
	QuantityReceived      int64  `json:"QuantityReceived"`
}

type inboundShipmentItemsResponse struct {
	Payload struct {
		ItemData  []inboundShipmentItem `json:"ItemData"`
		NextToken string                `json:"NextToken"`
	} `json:"payload"`
}

type inventorySummary struct {
	ASIN            string `json:"asin"`
	FNSKU           string `json:"fnSku"`
	SellerSKU       string `json:"sellerSku"`
	ProductName     string `json:"productName"`
	LastUpdatedTime string `json:"lastUpdatedTime"`
	TotalQuantity   int64  `json:"totalQuantity"`
	Details         struct {
		FulfillableQuantity      int64 `json:"fulfillableQuantity"`
		InboundWorkingQuantity   int64 `json:"inboundWorkingQuantity"`
		InboundShippedQuantity   int64 `json:"inboundShippedQuantity"`
		InboundReceivingQuantity int64 `json:"inboundReceivingQuantity"`
		ReservedQuantity         struct {
			TotalReservedQuantity int64 `json:"totalReservedQuantity"`
		} `json:"reservedQuantity"`
		UnfulfillableQuantity struct {
			TotalUnfulfillableQuantity int64 `json:"totalUnfulfillableQuantity"`
		} `json:"unfulfillableQuantity"`
	} `json:"inventoryDetails"`
}

type inventorySummariesResponse struct {
	Payload struct {
		InventorySummaries []inventorySummary `json:"inventorySummaries"`
	} `json:"payload"`
	Pagination struct {
		NextToken string `json:"nextToken"`
	} `json:"pagination"`
}
