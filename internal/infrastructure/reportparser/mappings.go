package reportparser

// Logical fields shared by the built-in maps.
const (
	FieldOrderID               Field = "order_id"
	FieldPurchaseDate          Field = "purchase_date"
	FieldLastUpdated           Field = "last_updated"
	FieldShipDate              Field = "ship_date"
	FieldOrderStatus           Field = "order_status"
	FieldFulfillmentChannel    Field = "fulfillment_channel"
	FieldSalesChannel          Field = "sales_channel"
	FieldSKU                   Field = "sku"
	FieldASIN                  Field = "asin"
	FieldFNSKU                 Field = "fnsku"
	FieldTitle                 Field = "title"
	FieldItemStatus            Field = "item_status"
	FieldQuantity              Field = "quantity"
	FieldCurrency              Field = "currency"
	FieldItemPrice             Field = "item_price"
	FieldItemTax               Field = "item_tax"
	FieldShippingPrice         Field = "shipping_price"
	FieldShippingTax           Field = "shipping_tax"
	FieldGiftWrapPrice         Field = "gift_wrap_price"
	FieldGiftWrapTax           Field = "gift_wrap_tax"
	FieldItemPromotionDiscount Field = "item_promotion_discount"
	FieldShipPromotionDiscount Field = "ship_promotion_discount"
	FieldShipCity              Field = "ship_city"
	FieldShipState             Field = "ship_state"
	FieldShipPostalCode        Field = "ship_postal_code"
	FieldShipCountry           Field = "ship_country"
	FieldReturnDate            Field = "return_date"
	FieldFulfillmentCenter     Field = "fulfillment_center"
	FieldDisposition           Field = "disposition"
	FieldReason                Field = "reason"
	FieldReturnStatus          Field = "return_status"
)

// OrdersReport maps the flat-file all-orders reports.
var OrdersReport = NewFieldMap("orders", map[Field][]string{
	FieldOrderID:               {"amazon-order-id", "order-id", "merchant-order-id"},
	FieldPurchaseDate:          {"purchase-date", "order-date", "purchase-datetime"},
	FieldLastUpdated:           {"last-updated-date", "last-update-date"},
	FieldShipDate:              {"shipment-date", "ship-date", "estimated-ship-date"},
	FieldOrderStatus:           {"order-status", "status"},
	FieldFulfillmentChannel:    {"fulfillment-channel", "fulfilment-channel"},
	FieldSalesChannel:          {"sales-channel", "marketplace"},
	FieldSKU:                   {"sku", "seller-sku", "merchant-sku"},
	FieldASIN:                  {"asin"},
	FieldTitle:                 {"product-name", "title", "item-name"},
	FieldItemStatus:            {"item-status"},
	FieldQuantity:              {"quantity", "quantity-purchased", "qty"},
	FieldCurrency:              {"currency"},
	FieldItemPrice:             {"item-price", "price"},
	FieldItemTax:               {"item-tax"},
	FieldShippingPrice:         {"shipping-price"},
	FieldShippingTax:           {"shipping-tax"},
	FieldGiftWrapPrice:         {"gift-wrap-price"},
	FieldGiftWrapTax:           {"gift-wrap-tax"},
	FieldItemPromotionDiscount: {"item-promotion-discount"},
	FieldShipPromotionDiscount: {"ship-promotion-discount"},
	FieldShipCity:              {"ship-city"},
	FieldShipState:             {"ship-state"},
	FieldShipPostalCode:        {"ship-postal-code"},
	FieldShipCountry:           {"ship-country"},
}, FieldOrderID, FieldSKU)

// ReturnsReport maps the FBA customer returns report.
var ReturnsReport = NewFieldMap("returns", map[Field][]string{
	FieldReturnDate:        {"return-date"},
	FieldOrderID:           {"order-id", "amazon-order-id"},
	FieldSKU:               {"sku", "seller-sku"},
	FieldASIN:              {"asin"},
	FieldFNSKU:             {"fnsku"},
	FieldTitle:             {"product-name", "title"},
	FieldQuantity:          {"quantity"},
	FieldFulfillmentCenter: {"fulfillment-center-id", "fulfillment-center"},
	FieldDisposition:       {"detailed-disposition", "disposition"},
	FieldReason:            {"reason", "return-reason"},
	FieldReturnStatus:      {"status", "return-status"},
}, FieldOrderID, FieldSKU)
