package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/sellersync/internal/domain/catalog"
	"github.com/erp/sellersync/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProductRepository implements catalog.ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindBySKU finds a product by its seller SKU
func (r *GormProductRepository) FindBySKU(ctx context.Context, sku string) (*catalog.Product, error) {
	return r.first(ctx, "sku = ?", sku)
}

// Match resolves a SKU/FNSKU pair to a catalog product.
func (r *GormProductRepository) Match(ctx context.Context, sku, fnsku string) (*catalog.Product, error) {
	sku = strings.TrimSpace(sku)
	fnsku = strings.TrimSpace(fnsku)

	type attempt struct {
		query string
		arg   string
	}
	attempts := []attempt{
		{"sku = ?", sku},
		{"fnsku = ?", fnsku},
		{"LOWER(sku) = ?", strings.ToLower(sku)},
		{"LOWER(fnsku) = ?", strings.ToLower(fnsku)},
	}
	for _, a := range attempts {
		if a.arg == "" {
			continue
		}
		p, err := r.first(ctx, a.query, a.arg)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}
	return nil, shared.ErrNotFound
}

// EnsureExists inserts the product unless its SKU is already present
func (r *GormProductRepository) EnsureExists(ctx context.Context, p *catalog.Product) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoNothing: true,
	}).Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// BackfillIdentifiers fills empty identifier columns of an existing product
func (r *GormProductRepository) BackfillIdentifiers(ctx context.Context, sku, asin, fnsku, title string) error {
	p, err := r.FindBySKU(ctx, sku)
	if err != nil {
		return err
	}
	if !p.BackfillIdentifiers(asin, fnsku, title) {
		return nil
	}
	return r.db.WithContext(ctx).Model(p).Select("asin", "fnsku", "title", "updated_at").Updates(p).Error
}

// Save writes every column of a product
func (r *GormProductRepository) Save(ctx context.Context, p *catalog.Product) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *GormProductRepository) first(ctx context.Context, query string, arg any) (*catalog.Product, error) {
	var p catalog.Product
	if err := r.db.WithContext(ctx).Where(query, arg).Order("sku").First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
