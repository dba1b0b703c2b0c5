package core

// upsert.go applies accepted rows to the catalog and inventory stores.
//
// The product update and the stock update of a row are independent: a
// missing product still gets its stock written, and a failed product save
// does not block the stock update. Store failures are logged at critical
// level, collected in the ApplyReport, and never abort the batch.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/skuimport/internal/logging"
)

const (
	stageCatalog   = "catalog"
	stageInventory = "inventory"
)

// AcceptedRow is a validated row projected onto the recognized columns.
type AcceptedRow struct {
	Index int
	Line  int
	Row   Row
}

// RowOutcome records what happened to one accepted row.
type RowOutcome struct {
	RowIndex     int
	SKU          string
	Existed      bool // product found in the catalog store
	ProductSaved bool
	StockSaved   bool
}

// ApplyReport summarizes one ApplyRows call.
type ApplyReport struct {
	Outcomes []RowOutcome
	Failures []FailedRow
}

// Applied reports whether at least one row reached the inventory step.
func (r ApplyReport) Applied() bool {
	return len(r.Outcomes) > 0
}

// Existing returns how many rows matched a product already in the catalog.
func (r ApplyReport) Existing() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Existed {
			n++
		}
	}
	return n
}

// UpsertExecutor writes accepted rows to the stores.
type UpsertExecutor struct {
	catalog   CatalogStore
	inventory InventoryStore
	resolver  *ReferenceResolver
	policy    callPolicy
	logger    *slog.Logger
}

// NewUpsertExecutor wires an executor. A nil logger uses slog.Default().
func NewUpsertExecutor(catalog CatalogStore, inventory InventoryStore, resolver *ReferenceResolver, opts Options, logger *slog.Logger) *UpsertExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpsertExecutor{
		catalog:   catalog,
		inventory: inventory,
		resolver:  resolver,
		policy:    callPolicy{timeout: opts.StoreTimeout, retries: opts.StoreRetries},
		logger:    logger,
	}
}

// ApplyRows processes rows in order.
func (e *UpsertExecutor) ApplyRows(ctx context.Context, rows []AcceptedRow) ApplyReport {
	var report ApplyReport

	for _, ar := range rows {
		sku := ar.Row.Get(ColumnSKU)
		outcome := RowOutcome{RowIndex: ar.Index, SKU: sku}

		product, err := e.fetchProduct(ctx, sku)
		switch {
		case err == nil:
			outcome.Existed = true
			if err := e.updateProduct(ctx, product, ar.Row); err != nil {
				e.fail(ctx, &report, ar, stageCatalog, err)
			} else {
				outcome.ProductSaved = true
			}
		case errors.Is(err, ErrNotFound):
			e.logger.Debug("product not found, skipping catalog update", "sku", sku, "line", ar.Line)
		default:
			logging.Critical(ctx, e.logger, "fetch product failed", "sku", sku, "line", ar.Line, "error", err)
		}

		if err := e.updateStock(ctx, sku, ar.Row); err != nil {
			e.fail(ctx, &report, ar, stageInventory, err)
		} else {
			outcome.StockSaved = true
		}

		report.Outcomes = append(report.Outcomes, outcome)
	}

	return report
}

func (e *UpsertExecutor) fetchProduct(ctx context.Context, sku string) (*Product, error) {
	var product *Product
	err := e.policy.do(ctx, func(ctx context.Context) error {
		var err error
		product, err = e.catalog.GetBySKU(ctx, sku)
		return err
	})
	return product, err
}

// updateProduct sets price, visibility and category, then saves. Unmatched
// visibility labels and category names leave the current value untouched.
func (e *UpsertExecutor) updateProduct(ctx context.Context, p *Product, row Row) error {
	price, err := decimal.NewFromString(row.Get(ColumnPrice))
	if err != nil {
		return fmt.Errorf("parse price %q: %w", row.Get(ColumnPrice), err)
	}
	p.Price = price

	if code, ok := e.resolver.ResolveVisibility(row.Get(ColumnVisibility)); ok {
		p.Visibility = code
	} else {
		e.logger.Debug("unknown visibility label, keeping current value",
			"sku", p.SKU, "label", row.Get(ColumnVisibility))
	}

	var categoryID int64
	var found bool
	err = e.policy.do(ctx, func(ctx context.Context) error {
		var err error
		categoryID, found, err = e.resolver.ResolveCategory(ctx, row.Get(ColumnCategory))
		return err
	})
	if err != nil {
		return err
	}
	if found {
		p.CategoryID = &categoryID
	}

	return e.policy.do(ctx, func(ctx context.Context) error {
		saved, err := e.catalog.Save(ctx, p)
		if err != nil {
			return fmt.Errorf("save product %q: %w", p.SKU, err)
		}
		if saved != nil {
			*p = *saved
		}
		return nil
	})
}

// updateStock writes qty and the derived in-stock flag. A missing stock
// item is created.
func (e *UpsertExecutor) updateStock(ctx context.Context, sku string, row Row) error {
	qty, err := decimal.NewFromString(row.Get(ColumnQty))
	if err != nil {
		return fmt.Errorf("parse qty %q: %w", row.Get(ColumnQty), err)
	}

	var item *StockItem
	err = e.policy.do(ctx, func(ctx context.Context) error {
		var err error
		item, err = e.inventory.GetStockItemBySKU(ctx, sku)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		item = &StockItem{SKU: sku}
	case err != nil:
		return fmt.Errorf("fetch stock item %q: %w", sku, err)
	}

	item.Qty = qty
	item.IsInStock = !qty.IsZero()

	return e.policy.do(ctx, func(ctx context.Context) error {
		if err := e.inventory.UpdateStockItemBySKU(ctx, sku, item); err != nil {
			return fmt.Errorf("update stock item %q: %w", sku, err)
		}
		return nil
	})
}

func (e *UpsertExecutor) fail(ctx context.Context, report *ApplyReport, ar AcceptedRow, stage string, err error) {
	sku := ar.Row.Get(ColumnSKU)
	logging.Critical(ctx, e.logger, "apply row failed",
		"stage", stage,
		"sku", sku,
		"line", ar.Line,
		"error", err,
	)
	report.Failures = append(report.Failures, FailedRow{
		RowIndex:   ar.Index,
		LineNumber: ar.Line,
		SKU:        sku,
		Stage:      stage,
		Reason:     err.Error(),
	})
}
