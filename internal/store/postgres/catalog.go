package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/JonMunkholm/skuimport/internal/core"
)

var productColumns = []string{"id", "sku", "price", "visibility", "category_id", "updated_at"}

// CatalogStore implements core.CatalogStore.
type CatalogStore struct {
	db DBTX
}

// NewCatalogStore creates a catalog store.
func NewCatalogStore(db DBTX) *CatalogStore {
	return &CatalogStore{db: db}
}

func productBySKUQuery(sku string) squirrel.SelectBuilder {
	return builder().
		Select(productColumns...).
		From(productTable).
		Where(squirrel.Eq{"sku": sku})
}

// GetBySKU implements core.CatalogStore.
func (s *CatalogStore) GetBySKU(ctx context.Context, sku string) (*core.Product, error) {
	sql, args, err := productBySKUQuery(sku).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var p core.Product
	if err := pgxscan.Get(ctx, s.db, &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("product %q: %w", sku, core.ErrNotFound)
		}
		return nil, fmt.Errorf("get product %q: %w", sku, err)
	}
	return &p, nil
}

func saveProductQuery(p *core.Product) squirrel.Sqlizer {
	returning := "RETURNING " + strings.Join(productColumns, ", ")

	if p.ID == 0 {
		return builder().
			Insert(productTable).
			Columns("sku", "price", "visibility", "category_id").
			Values(p.SKU, p.Price, p.Visibility, p.CategoryID).
			Suffix(returning)
	}
	return builder().
		Update(productTable).
		Set("price", p.Price).
		Set("visibility", p.Visibility).
		Set("category_id", p.CategoryID).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": p.ID}).
		Suffix(returning)
}

// Save implements core.CatalogStore. Products without an id are inserted.
func (s *CatalogStore) Save(ctx context.Context, p *core.Product) (*core.Product, error) {
	sql, args, err := saveProductQuery(p).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build save: %w", err)
	}

	var saved core.Product
	if err := pgxscan.Get(ctx, s.db, &saved, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("product %d: %w", p.ID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("save product %q: %w", p.SKU, err)
	}
	return &saved, nil
}
