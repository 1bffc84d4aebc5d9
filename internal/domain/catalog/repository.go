package catalog

import "context"

// ProductRepository persists catalog products.
type ProductRepository interface {
	FindBySKU(ctx context.Context, sku string) (*Product, error)
	// Match resolves a shipment line to a product: exact SKU, then exact
	// FNSKU, then case-insensitive SKU, then case-insensitive FNSKU.
	Match(ctx context.Context, sku, fnsku string) (*Product, error)
	// EnsureExists inserts p if no product with its SKU exists yet.
	EnsureExists(ctx context.Context, p *Product) (created bool, err error)
	BackfillIdentifiers(ctx context.Context, sku, asin, fnsku, title string) error
	Save(ctx context.Context, p *Product) error
}
