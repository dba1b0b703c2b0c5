package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Recognized input columns. All are required.
const (
	ColumnSKU        = "sku"
	ColumnPrice      = "price"
	ColumnQty        = "qty"
	ColumnVisibility = "value"
	ColumnCategory   = "category"
)

// Columns lists the recognized columns in projection order.
var Columns = []string{ColumnSKU, ColumnPrice, ColumnQty, ColumnVisibility, ColumnCategory}

// ErrNotFound is returned by stores when no record matches the lookup key.
var ErrNotFound = errors.New("not found")

// ErrUnknownBehavior is returned by ParseBehavior for unrecognized run modes.
var ErrUnknownBehavior = errors.New("unknown import behavior")

// Row maps a column name to its raw string value.
type Row map[string]string

// Get returns the trimmed value for a column ("" if absent).
func (r Row) Get(col string) string {
	return strings.TrimSpace(r[col])
}

// Has reports whether the column is present, even if empty.
func (r Row) Has(col string) bool {
	_, ok := r[col]
	return ok
}

// SourceRow is a Row together with its 0-based position among the data rows
// and the 1-based file line it starts on.
type SourceRow struct {
	Index int
	Line  int
	Row   Row
}

// LineNumber returns the file line the row starts on. Sources without file
// lines leave Line unset and rows count from line 2, under the header.
func (sr SourceRow) LineNumber() int {
	if sr.Line > 0 {
		return sr.Line
	}
	return sr.Index + 2
}

// RowSource yields bounded bunches of rows. NextBunch returns io.EOF once
// the input is exhausted.
type RowSource interface {
	NextBunch(ctx context.Context) ([]SourceRow, error)
}

// Product is the catalog entity touched by the import.
type Product struct {
	ID         int64           `db:"id"`
	SKU        string          `db:"sku"`
	Price      decimal.Decimal `db:"price"`
	Visibility int             `db:"visibility"`
	CategoryID *int64          `db:"category_id"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

// StockItem is the inventory record for a SKU.
type StockItem struct {
	SKU       string          `db:"sku"`
	Qty       decimal.Decimal `db:"qty"`
	IsInStock bool            `db:"is_in_stock"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Category is a catalog category as returned by the directory.
type Category struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// CatalogStore fetches and persists products by SKU.
// GetBySKU returns an error wrapping ErrNotFound when the SKU is unknown.
type CatalogStore interface {
	GetBySKU(ctx context.Context, sku string) (*Product, error)
	Save(ctx context.Context, p *Product) (*Product, error)
}

// InventoryStore fetches and persists stock items by SKU.
// GetStockItemBySKU returns an error wrapping ErrNotFound when no item exists.
type InventoryStore interface {
	GetStockItemBySKU(ctx context.Context, sku string) (*StockItem, error)
	UpdateStockItemBySKU(ctx context.Context, sku string, item *StockItem) error
}

// CategoryDirectory looks categories up by exact name, in directory order.
type CategoryDirectory interface {
	FindByName(ctx context.Context, name string, limit int) ([]Category, error)
}

// Behavior is the configured run mode.
type Behavior string

const (
	BehaviorDelete  Behavior = "delete"
	BehaviorReplace Behavior = "replace"
	BehaviorAppend  Behavior = "append"
)

// ParseBehavior converts a configuration string into a Behavior.
func ParseBehavior(s string) (Behavior, error) {
	switch b := Behavior(strings.ToLower(strings.TrimSpace(s))); b {
	case BehaviorDelete, BehaviorReplace, BehaviorAppend:
		return b, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBehavior, s)
	}
}

// CountPolicy selects how rows are tallied as created or updated.
type CountPolicy string

const (
	// CountByIdentifier counts a row as updated when its sku column is
	// present and as created otherwise. Validation guarantees the column,
	// so in practice every accepted row counts as updated.
	CountByIdentifier CountPolicy = "identifier"

	// CountByExistence counts a row as updated when the product already
	// existed in the catalog store and as created otherwise.
	CountByExistence CountPolicy = "existence"
)

// ParseCountPolicy converts a configuration string into a CountPolicy.
func ParseCountPolicy(s string) (CountPolicy, error) {
	switch p := CountPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case CountByIdentifier, CountByExistence:
		return p, nil
	default:
		return "", fmt.Errorf("unknown count policy: %q", s)
	}
}

// RunCounters tallies the outcome of a run.
type RunCounters struct {
	ItemsCreated   int `json:"itemsCreated"`
	ItemsUpdated   int `json:"itemsUpdated"`
	ItemsProcessed int `json:"itemsProcessed"`
	ItemsSkipped   int `json:"itemsSkipped"`
}

// RunPhase indicates where the pipeline currently is.
type RunPhase string

const (
	PhaseStarting    RunPhase = "starting"
	PhaseStreaming   RunPhase = "streaming"
	PhaseChunkActive RunPhase = "chunk_active"
	PhaseApplying    RunPhase = "applying"
	PhaseDone        RunPhase = "done"
	PhaseFailed      RunPhase = "failed"
	PhaseCancelled   RunPhase = "cancelled"
)

// FailedRow describes a row whose product or stock update could not be applied.
type FailedRow struct {
	RowIndex   int    `json:"rowIndex"`
	LineNumber int    `json:"lineNumber"`
	SKU        string `json:"sku"`
	Stage      string `json:"stage"` // "catalog" or "inventory"
	Reason     string `json:"reason"`
}

// ImportResult is the outcome (or in-flight snapshot) of a run.
type ImportResult struct {
	RunID        string            `json:"runId"`
	FileName     string            `json:"fileName,omitempty"`
	ClientIP     string            `json:"clientIp,omitempty"`
	Behavior     Behavior          `json:"behavior"`
	Phase        RunPhase          `json:"phase"`
	RowsRead     int               `json:"rowsRead"`
	Bunches      int               `json:"bunches"`
	Counters     RunCounters       `json:"counters"`
	Errors       []RowError        `json:"errors,omitempty"`
	ErrorSummary map[ErrorKind]int `json:"errorSummary,omitempty"`
	SkippedRows  []int             `json:"skippedRows,omitempty"` // row indices skipped after termination
	Failures     []FailedRow       `json:"failures,omitempty"`
	Terminated   bool              `json:"terminated"`
	StartedAt    time.Time         `json:"startedAt"`
	Duration     time.Duration     `json:"duration"`
	Error        string            `json:"error,omitempty"` // non-empty if the run itself failed
}

// InvalidRows returns the number of distinct rows with validation errors.
func (r *ImportResult) InvalidRows() int {
	seen := make(map[int]struct{}, len(r.Errors))
	for _, e := range r.Errors {
		seen[e.RowIndex] = struct{}{}
	}
	return len(seen)
}
