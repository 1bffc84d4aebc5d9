package sales

import (
	"context"
	"time"
)

// OrderRepository persists orders and their items. Upserts are keyed on the
// vendor identifiers and report whether a new row was created.
type OrderRepository interface {
	UpsertOrder(ctx context.Context, order *Order) (created bool, err error)
	UpsertItem(ctx context.Context, item *OrderItem) (created bool, err error)
	FindOrder(ctx context.Context, amazonOrderID string) (*Order, error)
	FindItem(ctx context.Context, amazonOrderID, sku string) (*OrderItem, error)
	FindItems(ctx context.Context, amazonOrderID string) ([]OrderItem, error)
	SaveItem(ctx context.Context, item *OrderItem) error
	MarkReturned(ctx context.Context, amazonOrderID string) error
	CountOrders(ctx context.Context) (int64, error)
	LatestPurchaseDate(ctx context.Context) (time.Time, error)
}

// ReturnRepository persists customer returns.
type ReturnRepository interface {
	Upsert(ctx context.Context, ret *Return) (created bool, err error)
	FindByOrderAndSKU(ctx context.Context, amazonOrderID, sku string) (*Return, error)
	Save(ctx context.Context, ret *Return) error
}
