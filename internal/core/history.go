package core

import (
	"context"
	"time"
)

// RunRecord is the persisted summary of one finished import.
type RunRecord struct {
	ID           string        `db:"id" json:"id"`
	FileName     string        `db:"file_name" json:"fileName"`
	ClientIP     string        `db:"client_ip" json:"clientIp,omitempty"`
	Behavior     Behavior      `db:"behavior" json:"behavior"`
	Status       RunPhase      `db:"status" json:"status"`
	RowsRead     int           `db:"rows_read" json:"rowsRead"`
	ItemsCreated int           `db:"items_created" json:"itemsCreated"`
	ItemsUpdated int           `db:"items_updated" json:"itemsUpdated"`
	ItemsSkipped int           `db:"items_skipped" json:"itemsSkipped"`
	ErrorCount   int           `db:"error_count" json:"errorCount"`
	FailureCount int           `db:"failure_count" json:"failureCount"`
	StartedAt    time.Time     `db:"started_at" json:"startedAt"`
	Duration     time.Duration `db:"duration" json:"duration"`
	Error        string        `db:"error" json:"error,omitempty"`
}

// HistoryStore persists run summaries. ListRuns returns the newest first.
type HistoryStore interface {
	RecordRun(ctx context.Context, rec RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// NewRunRecord summarizes a result for the history store.
func NewRunRecord(r *ImportResult) RunRecord {
	return RunRecord{
		ID:           r.RunID,
		FileName:     r.FileName,
		ClientIP:     r.ClientIP,
		Behavior:     r.Behavior,
		Status:       r.Phase,
		RowsRead:     r.RowsRead,
		ItemsCreated: r.Counters.ItemsCreated,
		ItemsUpdated: r.Counters.ItemsUpdated,
		ItemsSkipped: r.Counters.ItemsSkipped,
		ErrorCount:   len(r.Errors),
		FailureCount: len(r.Failures),
		StartedAt:    r.StartedAt,
		Duration:     r.Duration,
		Error:        r.Error,
	}
}
