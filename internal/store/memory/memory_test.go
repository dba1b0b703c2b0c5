package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/skuimport/internal/core"
)

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog(core.Product{SKU: "A", Price: decimal.NewFromInt(1)})

	_, err := c.GetBySKU(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	p, err := c.GetBySKU(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)

	p.Price = decimal.RequireFromString("2.50")
	saved, err := c.Save(ctx, p)
	require.NoError(t, err)
	assert.False(t, saved.UpdatedAt.IsZero())

	got, ok := c.Product("A")
	require.True(t, ok)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("2.5")))
}

func TestCatalog_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog(core.Product{SKU: "A", Visibility: 1})

	p, err := c.GetBySKU(ctx, "A")
	require.NoError(t, err)
	p.Visibility = 4

	got, _ := c.Product("A")
	assert.Equal(t, 1, got.Visibility)
}

func TestInventory_UpdateCreatesMissing(t *testing.T) {
	ctx := context.Background()
	inv := NewInventory()

	_, err := inv.GetStockItemBySKU(ctx, "A")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, inv.UpdateStockItemBySKU(ctx, "A", &core.StockItem{Qty: decimal.NewFromInt(3), IsInStock: true}))

	it, ok := inv.Item("A")
	require.True(t, ok)
	assert.Equal(t, "A", it.SKU)
	assert.True(t, it.IsInStock)
}

func TestCategories_FindByNameKeepsOrder(t *testing.T) {
	cats := NewCategories(
		core.Category{ID: 9, Name: "Hats"},
		core.Category{ID: 7, Name: "Shoes"},
		core.Category{ID: 8, Name: "Shoes"},
	)

	got, err := cats.FindByName(context.Background(), "Shoes", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)

	got, err = cats.FindByName(context.Background(), "shoes", 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistory_NewestFirst(t *testing.T) {
	ctx := context.Background()
	h := NewHistory()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, h.RecordRun(ctx, core.RunRecord{ID: "old", StartedAt: base}))
	require.NoError(t, h.RecordRun(ctx, core.RunRecord{ID: "new", StartedAt: base.Add(time.Hour)}))

	got, err := h.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}
