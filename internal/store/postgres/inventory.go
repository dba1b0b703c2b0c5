package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/JonMunkholm/skuimport/internal/core"
)

// InventoryStore implements core.InventoryStore.
type InventoryStore struct {
	db DBTX
}

// NewInventoryStore creates an inventory store.
func NewInventoryStore(db DBTX) *InventoryStore {
	return &InventoryStore{db: db}
}

func stockBySKUQuery(sku string) squirrel.SelectBuilder {
	return builder().
		Select("sku", "qty", "is_in_stock", "updated_at").
		From(stockTable).
		Where(squirrel.Eq{"sku": sku})
}

// GetStockItemBySKU implements core.InventoryStore.
func (s *InventoryStore) GetStockItemBySKU(ctx context.Context, sku string) (*core.StockItem, error) {
	sql, args, err := stockBySKUQuery(sku).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var item core.StockItem
	if err := pgxscan.Get(ctx, s.db, &item, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("stock item %q: %w", sku, core.ErrNotFound)
		}
		return nil, fmt.Errorf("get stock item %q: %w", sku, err)
	}
	return &item, nil
}

func upsertStockQuery(sku string, item *core.StockItem) squirrel.InsertBuilder {
	return builder().
		Insert(stockTable).
		Columns("sku", "qty", "is_in_stock").
		Values(sku, item.Qty, item.IsInStock).
		Suffix("ON CONFLICT (sku) DO UPDATE SET qty = EXCLUDED.qty, is_in_stock = EXCLUDED.is_in_stock, updated_at = now()")
}

// UpdateStockItemBySKU implements core.InventoryStore. A missing row is inserted.
func (s *InventoryStore) UpdateStockItemBySKU(ctx context.Context, sku string, item *core.StockItem) error {
	sql, args, err := upsertStockQuery(sku, item).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update stock item %q: %w", sku, err)
	}
	return nil
}
