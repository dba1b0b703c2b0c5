package core_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/skuimport/internal/core"
	"github.com/JonMunkholm/skuimport/internal/source"
	"github.com/JonMunkholm/skuimport/internal/store/memory"
)

// recordingCatalog remembers the order of product lookups.
type recordingCatalog struct {
	*memory.Catalog

	mu      sync.Mutex
	lookups []string
}

func (c *recordingCatalog) GetBySKU(ctx context.Context, sku string) (*core.Product, error) {
	c.mu.Lock()
	c.lookups = append(c.lookups, sku)
	c.mu.Unlock()
	return c.Catalog.GetBySKU(ctx, sku)
}

type failingSource struct {
	inner core.RowSource
	after int
	calls int
}

func (s *failingSource) NextBunch(ctx context.Context) ([]core.SourceRow, error) {
	s.calls++
	if s.calls > s.after {
		return nil, errors.New("unexpected EOF in quoted field")
	}
	return s.inner.NextBunch(ctx)
}

// cancellingSource cancels the run after handing out its first bunch.
type cancellingSource struct {
	inner  core.RowSource
	cancel context.CancelFunc
	served bool
}

func (s *cancellingSource) NextBunch(ctx context.Context) ([]core.SourceRow, error) {
	if s.served {
		s.cancel()
	}
	s.served = true
	return s.inner.NextBunch(ctx)
}

func newImporter(t *testing.T, f *fixture, src core.RowSource, opts core.Options) (*core.Importer, *recordingCatalog) {
	t.Helper()
	catalog := &recordingCatalog{Catalog: f.catalog}
	im := core.NewImporter(core.Deps{
		Source:     src,
		Catalog:    catalog,
		Inventory:  f.inventory,
		Categories: f.categories,
	}, opts)
	return im, catalog
}

func TestImporter_AppliesRowsInBunches(t *testing.T) {
	f := newFixture(core.Product{SKU: "ABC123", Price: decimal.NewFromInt(1)})
	rows := []core.Row{
		row("ABC123", "19.99", "0", "Catalog", "Shoes"),
		row("N1", "1", "5", "Search", "Hats"),
		row("N2", "2", "1", "Search", "Hats"),
	}

	var progress []core.ImportResult
	im, _ := newImporter(t, f, source.NewSliceSource(rows, 2), core.Options{
		Behavior:   core.BehaviorReplace,
		OnProgress: func(r core.ImportResult) { progress = append(progress, r) },
	})

	result, err := im.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.PhaseDone, result.Phase)
	assert.Equal(t, core.BehaviorReplace, result.Behavior)
	assert.Equal(t, 3, result.RowsRead)
	assert.Equal(t, 2, result.Bunches)
	assert.Equal(t, 3, result.Counters.ItemsProcessed)
	assert.Empty(t, result.Error)
	assert.False(t, result.StartedAt.IsZero())

	p, _ := f.catalog.Product("ABC123")
	assert.Equal(t, "19.99", p.Price.String())
	for _, sku := range []string{"ABC123", "N1", "N2"} {
		_, ok := f.inventory.Item(sku)
		assert.True(t, ok, sku)
	}

	require.NotEmpty(t, progress)
	assert.Equal(t, core.PhaseDone, progress[len(progress)-1].Phase)
}

func TestImporter_DeleteIsNoOp(t *testing.T) {
	f := newFixture(core.Product{SKU: "A1", Price: decimal.NewFromInt(1)})
	im, catalog := newImporter(t, f, source.NewSliceSource([]core.Row{row("A1", "9", "9", "Catalog", "Shoes")}, 10),
		core.Options{Behavior: core.BehaviorDelete})

	result, err := im.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.PhaseDone, result.Phase)
	assert.Zero(t, result.RowsRead)
	assert.Empty(t, catalog.lookups)
	p, _ := f.catalog.Product("A1")
	assert.Equal(t, "1", p.Price.String())
	_, ok := f.inventory.Item("A1")
	assert.False(t, ok)
}

func TestImporter_GroupsBySKUWithinBunch(t *testing.T) {
	f := newFixture()
	rows := []core.Row{
		row("A", "1", "1", "Catalog", "Shoes"),
		row("B", "1", "2", "Catalog", "Shoes"),
		row("A", "1", "3", "Catalog", "Shoes"),
		row("C", "1", "4", "Catalog", "Shoes"), // next bunch
	}
	im, catalog := newImporter(t, f, source.NewSliceSource(rows, 3), core.Options{})

	_, err := im.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "A", "B", "C"}, catalog.lookups)
	item, _ := f.inventory.Item("A")
	assert.Equal(t, "3", item.Qty.String(), "later row for the same sku wins")
}

func TestImporter_ValidationErrorsSkipRows(t *testing.T) {
	f := newFixture()
	rows := []core.Row{
		row("A", "1", "1", "Catalog", "Shoes"),
		row("", "1", "1", "", "Shoes"),
		row("C", "1", "1", "Catalog", "Shoes"),
	}
	im, catalog := newImporter(t, f, source.NewSliceSource(rows, 10), core.Options{})

	result, err := im.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C"}, catalog.lookups)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, core.ErrSkuIsRequired, result.Errors[0].Kind)
	assert.Equal(t, core.ErrVisibilityIsRequired, result.Errors[1].Kind)
	assert.Equal(t, 3, result.Errors[0].LineNumber)
	assert.Equal(t, 1, result.InvalidRows())
	assert.Equal(t, 2, result.Counters.ItemsProcessed)
	assert.Equal(t, map[core.ErrorKind]int{core.ErrSkuIsRequired: 1, core.ErrVisibilityIsRequired: 1}, result.ErrorSummary)
	assert.Empty(t, result.SkippedRows)
}

func TestImporter_ReportsFileLines(t *testing.T) {
	f := newFixture(core.Product{SKU: "A1", Price: decimal.NewFromInt(1)})
	f.catalog.SaveErr["A1"] = errors.New("connection refused")

	input := "sku,price,qty,value,category\n" +
		"\n" +
		"A1,1.00,1,Catalog,Shoes\n" +
		"\n" +
		",2.00,0,Search,Hats\n"
	src, err := source.NewCSVSource(strings.NewReader(input), 10)
	require.NoError(t, err)

	im, _ := newImporter(t, f, src, core.Options{})
	result, err := im.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Errors[0].RowIndex)
	assert.Equal(t, 5, result.Errors[0].LineNumber)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, 0, result.Failures[0].RowIndex)
	assert.Equal(t, 3, result.Failures[0].LineNumber)
}

func TestImporter_CountPolicies(t *testing.T) {
	rows := []core.Row{
		row("OLD", "1", "1", "Catalog", "Shoes"),
		row("NEW", "1", "1", "Catalog", "Shoes"),
		row("", "1", "1", "Catalog", "Shoes"),
	}

	tests := []struct {
		policy      core.CountPolicy
		wantCreated int
		wantUpdated int
	}{
		// The sku column is always present on accepted rows.
		{core.CountByIdentifier, 0, 2},
		{core.CountByExistence, 1, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			f := newFixture(core.Product{SKU: "OLD", Price: decimal.NewFromInt(1)})
			im, _ := newImporter(t, f, source.NewSliceSource(rows, 2), core.Options{CountPolicy: tt.policy})

			result, err := im.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantCreated, result.Counters.ItemsCreated)
			assert.Equal(t, tt.wantUpdated, result.Counters.ItemsUpdated)
		})
	}
}

func TestImporter_StopOnErrorSkipsRemainingRows(t *testing.T) {
	f := newFixture()
	rows := []core.Row{
		row("A", "1", "1", "Catalog", "Shoes"),
		row("B", "", "1", "Catalog", "Shoes"),
		row("C", "1", "1", "Catalog", "Shoes"),
		row("", "1", "1", "Catalog", "Shoes"),
		row("E", "1", "1", "Catalog", "Shoes"),
	}
	im, catalog := newImporter(t, f, source.NewSliceSource(rows, 2), core.Options{
		ValidationStrategy: core.StrategyStopOnError,
		AllowedErrors:      1,
	})

	result, err := im.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.PhaseDone, result.Phase)
	assert.True(t, result.Terminated)
	assert.Equal(t, []string{"A"}, catalog.lookups)
	assert.Equal(t, 2, result.Counters.ItemsSkipped)
	assert.Equal(t, 5, result.RowsRead, "iteration continues after termination")
	assert.Equal(t, []int{2, 4}, result.SkippedRows)
	assert.Equal(t, map[core.ErrorKind]int{core.ErrPriceIsRequired: 1, core.ErrSkuIsRequired: 1}, result.ErrorSummary)
	assert.Len(t, result.Errors, 2)
}

func TestImporter_SourceErrorFailsRun(t *testing.T) {
	f := newFixture()
	rows := []core.Row{row("A", "1", "1", "Catalog", "Shoes"), row("B", "1", "1", "Catalog", "Shoes")}
	src := &failingSource{inner: source.NewSliceSource(rows, 1), after: 1}
	im, _ := newImporter(t, f, src, core.Options{})

	result, err := im.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "read rows")

	assert.Equal(t, core.PhaseFailed, result.Phase)
	assert.Equal(t, 1, result.RowsRead)
	assert.Contains(t, result.Error, "unexpected EOF")
	_, ok := f.inventory.Item("A")
	assert.True(t, ok, "rows applied before the failure stay applied")
}

func TestImporter_Cancelled(t *testing.T) {
	f := newFixture()
	rows := []core.Row{row("A", "1", "1", "Catalog", "Shoes"), row("B", "1", "1", "Catalog", "Shoes")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancellingSource{inner: source.NewSliceSource(rows, 1), cancel: cancel}
	im, _ := newImporter(t, f, src, core.Options{})

	result, err := im.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.PhaseCancelled, result.Phase)
	assert.Equal(t, 1, result.RowsRead)
}

func TestImporter_ApplyFailuresAreReported(t *testing.T) {
	f := newFixture(core.Product{SKU: "A", Price: decimal.NewFromInt(1)})
	f.catalog.SaveErr["A"] = errors.New("connection reset by peer")

	im, _ := newImporter(t, f, source.NewSliceSource([]core.Row{row("A", "2", "1", "Catalog", "Shoes")}, 1), core.Options{})

	result, err := im.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.PhaseDone, result.Phase)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "catalog", result.Failures[0].Stage)
}
