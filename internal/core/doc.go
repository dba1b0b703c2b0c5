// Package core implements the SKU bulk import pipeline.
//
// A run reads rows from a RowSource in bounded bunches, validates each row
// against the five required columns, groups accepted rows by SKU and hands
// them to the UpsertExecutor, which updates the catalog product (price,
// visibility, category) and the inventory stock item (qty, in-stock flag)
// as two independent writes.
//
// # Components
//
//   - [RowValidator] records one error per missing column in an
//     [ErrorAggregator] and memoizes its verdict per row index.
//   - [ErrorAggregator] accumulates row errors and owns the stop-on-error
//     termination policy.
//   - [ReferenceResolver] maps category names and visibility labels to ids.
//   - [UpsertExecutor] applies accepted rows; store failures are logged at
//     critical level and reported, never fatal.
//   - [Importer] drives a single run and produces an [ImportResult].
//   - [Service] runs imports in the background behind a [RunLimiter] and
//     keeps results and history for the HTTP layer.
//
// # Stores
//
// The package only defines the store interfaces ([CatalogStore],
// [InventoryStore], [CategoryDirectory], [HistoryStore]). Postgres and
// in-memory implementations live under internal/store.
//
// # Behaviors
//
// append and replace run the same upsert pipeline. delete is accepted but
// performs no reads or writes.
package core
