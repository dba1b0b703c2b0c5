// Package postgres implements the import stores on PostgreSQL.
//
// Queries are built with squirrel (dollar placeholders) and scanned with
// pgxscan. Every store takes a DBTX so it runs the same against a pool or a
// transaction.
package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Table names.
const (
	productTable  = "catalog_product"
	stockTable    = "inventory_stock_item"
	categoryTable = "catalog_category"
	runTable      = "import_run"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Stores bundles every store over one connection.
type Stores struct {
	Catalog    *CatalogStore
	Inventory  *InventoryStore
	Categories *CategoryDirectory
	History    *HistoryStore
}

// New returns all stores backed by db.
func New(db DBTX) Stores {
	return Stores{
		Catalog:    NewCatalogStore(db),
		Inventory:  NewInventoryStore(db),
		Categories: NewCategoryDirectory(db),
		History:    NewHistoryStore(db),
	}
}
