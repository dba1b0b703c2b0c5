package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/JonMunkholm/skuimport/internal/core"
)

// HistoryStore implements core.HistoryStore.
type HistoryStore struct {
	db DBTX
}

// NewHistoryStore creates a history store.
func NewHistoryStore(db DBTX) *HistoryStore {
	return &HistoryStore{db: db}
}

// runRow mirrors import_run; duration is stored in milliseconds.
type runRow struct {
	ID           string    `db:"id"`
	FileName     string    `db:"file_name"`
	ClientIP     string    `db:"client_ip"`
	Behavior     string    `db:"behavior"`
	Status       string    `db:"status"`
	RowsRead     int       `db:"rows_read"`
	ItemsCreated int       `db:"items_created"`
	ItemsUpdated int       `db:"items_updated"`
	ItemsSkipped int       `db:"items_skipped"`
	ErrorCount   int       `db:"error_count"`
	FailureCount int       `db:"failure_count"`
	StartedAt    time.Time `db:"started_at"`
	DurationMS   int64     `db:"duration_ms"`
	Error        string    `db:"error"`
}

var runColumns = []string{
	"id", "file_name", "client_ip", "behavior", "status", "rows_read",
	"items_created", "items_updated", "items_skipped", "error_count",
	"failure_count", "started_at", "duration_ms", "error",
}

func (r runRow) record() core.RunRecord {
	return core.RunRecord{
		ID:           r.ID,
		FileName:     r.FileName,
		ClientIP:     r.ClientIP,
		Behavior:     core.Behavior(r.Behavior),
		Status:       core.RunPhase(r.Status),
		RowsRead:     r.RowsRead,
		ItemsCreated: r.ItemsCreated,
		ItemsUpdated: r.ItemsUpdated,
		ItemsSkipped: r.ItemsSkipped,
		ErrorCount:   r.ErrorCount,
		FailureCount: r.FailureCount,
		StartedAt:    r.StartedAt,
		Duration:     time.Duration(r.DurationMS) * time.Millisecond,
		Error:        r.Error,
	}
}

func insertRunQuery(rec core.RunRecord) squirrel.InsertBuilder {
	return builder().
		Insert(runTable).
		Columns(runColumns...).
		Values(
			rec.ID, rec.FileName, rec.ClientIP, string(rec.Behavior), string(rec.Status), rec.RowsRead,
			rec.ItemsCreated, rec.ItemsUpdated, rec.ItemsSkipped, rec.ErrorCount,
			rec.FailureCount, rec.StartedAt, rec.Duration.Milliseconds(), rec.Error,
		)
}

func listRunsQuery(limit int) squirrel.SelectBuilder {
	return builder().
		Select(runColumns...).
		From(runTable).
		OrderBy("started_at DESC").
		Limit(uint64(limit))
}

// RecordRun implements core.HistoryStore.
func (s *HistoryStore) RecordRun(ctx context.Context, rec core.RunRecord) error {
	sql, args, err := insertRunQuery(rec).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("record run %s: %w", rec.ID, err)
	}
	return nil
}

// ListRuns implements core.HistoryStore.
func (s *HistoryStore) ListRuns(ctx context.Context, limit int) ([]core.RunRecord, error) {
	sql, args, err := listRunsQuery(limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []runRow
	if err := pgxscan.Select(ctx, s.db, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	out := make([]core.RunRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}
