// Package memory provides in-process implementations of the import stores.
//
// They back the importer's dry-run mode and the tests. All stores are safe
// for concurrent use and hand out copies, so callers never share state with
// the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/skuimport/internal/core"
)

// Catalog is an in-memory core.CatalogStore.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]core.Product
	nextID   int64

	// SaveErr, when set, is returned by Save for the given SKU.
	SaveErr map[string]error
}

// NewCatalog seeds a catalog with products. Products without an ID get one.
func NewCatalog(products ...core.Product) *Catalog {
	c := &Catalog{products: make(map[string]core.Product), SaveErr: make(map[string]error)}
	for _, p := range products {
		c.put(p)
	}
	return c
}

func (c *Catalog) put(p core.Product) core.Product {
	if p.ID == 0 {
		c.nextID++
		p.ID = c.nextID
	} else if p.ID > c.nextID {
		c.nextID = p.ID
	}
	c.products[p.SKU] = p
	return p
}

// GetBySKU implements core.CatalogStore.
func (c *Catalog) GetBySKU(_ context.Context, sku string) (*core.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[sku]
	if !ok {
		return nil, fmt.Errorf("product %q: %w", sku, core.ErrNotFound)
	}
	return &p, nil
}

// Save implements core.CatalogStore.
func (c *Catalog) Save(_ context.Context, p *core.Product) (*core.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.SaveErr[p.SKU]; err != nil {
		return nil, err
	}
	saved := *p
	saved.UpdatedAt = time.Now()
	saved = c.put(saved)
	return &saved, nil
}

// Product returns a copy of the stored product.
func (c *Catalog) Product(sku string) (core.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[sku]
	return p, ok
}

// Inventory is an in-memory core.InventoryStore.
type Inventory struct {
	mu    sync.RWMutex
	items map[string]core.StockItem

	// UpdateErr, when set, is returned by UpdateStockItemBySKU for the SKU.
	UpdateErr map[string]error
}

// NewInventory seeds an inventory with stock items.
func NewInventory(items ...core.StockItem) *Inventory {
	inv := &Inventory{items: make(map[string]core.StockItem), UpdateErr: make(map[string]error)}
	for _, it := range items {
		inv.items[it.SKU] = it
	}
	return inv
}

// GetStockItemBySKU implements core.InventoryStore.
func (inv *Inventory) GetStockItemBySKU(_ context.Context, sku string) (*core.StockItem, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	it, ok := inv.items[sku]
	if !ok {
		return nil, fmt.Errorf("stock item %q: %w", sku, core.ErrNotFound)
	}
	return &it, nil
}

// UpdateStockItemBySKU implements core.InventoryStore. Unknown SKUs are created.
func (inv *Inventory) UpdateStockItemBySKU(_ context.Context, sku string, item *core.StockItem) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if err := inv.UpdateErr[sku]; err != nil {
		return err
	}
	it := *item
	it.SKU = sku
	it.UpdatedAt = time.Now()
	inv.items[sku] = it
	return nil
}

// Item returns a copy of the stored stock item.
func (inv *Inventory) Item(sku string) (core.StockItem, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	it, ok := inv.items[sku]
	return it, ok
}

// Categories is an in-memory core.CategoryDirectory. Directory order is
// insertion order.
type Categories struct {
	mu   sync.RWMutex
	list []core.Category
}

// NewCategories seeds the directory.
func NewCategories(cats ...core.Category) *Categories {
	return &Categories{list: append([]core.Category(nil), cats...)}
}

// FindByName implements core.CategoryDirectory.
func (c *Categories) FindByName(_ context.Context, name string, limit int) ([]core.Category, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []core.Category
	for _, cat := range c.list {
		if cat.Name != name {
			continue
		}
		out = append(out, cat)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// History is an in-memory core.HistoryStore.
type History struct {
	mu      sync.RWMutex
	records []core.RunRecord
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// RecordRun implements core.HistoryStore.
func (h *History) RecordRun(_ context.Context, rec core.RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

// ListRuns implements core.HistoryStore.
func (h *History) ListRuns(_ context.Context, limit int) ([]core.RunRecord, error) {
	h.mu.RLock()
	out := append([]core.RunRecord(nil), h.records...)
	h.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
