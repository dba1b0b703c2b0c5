package core

// pipeline.go drives one import run.
//
// The importer pulls bunches from the row source one at a time. Every row is
// validated, checked against the termination policy, projected onto the
// recognized columns and grouped by SKU. The accepted rows of a bunch are
// then handed to the upsert executor before the next bunch is pulled.
//
// Only a row source failure ends a run early. Validation errors, skipped
// rows and store failures are recorded and reported in the ImportResult.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ProgressCallback receives a snapshot after every applied bunch and on
// every phase change.
type ProgressCallback func(ImportResult)

// Deps are the collaborators an Importer talks to.
type Deps struct {
	Source     RowSource
	Catalog    CatalogStore
	Inventory  InventoryStore
	Categories CategoryDirectory
}

// Options configure a single run. Zero values fall back to defaults.
type Options struct {
	RunID              string
	FileName           string
	ClientIP           string
	Behavior           Behavior
	ValidationStrategy ValidationStrategy
	AllowedErrors      int
	CountPolicy        CountPolicy
	StoreTimeout       time.Duration
	StoreRetries       int
	Logger             *slog.Logger
	OnProgress         ProgressCallback
}

func (o Options) withDefaults() Options {
	if o.Behavior == "" {
		o.Behavior = BehaviorAppend
	}
	if o.ValidationStrategy == "" {
		o.ValidationStrategy = StrategySkipErrors
	}
	if o.CountPolicy == "" {
		o.CountPolicy = CountByIdentifier
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Importer runs the bulk import for one input.
// An Importer is single-use; its validator memo and error state live for
// exactly one run.
type Importer struct {
	deps      Deps
	opts      Options
	errs      *ErrorAggregator
	validator *RowValidator
	executor  *UpsertExecutor
	logger    *slog.Logger

	mu     sync.Mutex
	result ImportResult
}

// NewImporter wires an importer from its collaborators.
func NewImporter(deps Deps, opts Options) *Importer {
	opts = opts.withDefaults()

	errs := NewErrorAggregator(opts.ValidationStrategy, opts.AllowedErrors)
	logger := opts.Logger.With("run_id", opts.RunID)

	return &Importer{
		deps:      deps,
		opts:      opts,
		errs:      errs,
		validator: NewRowValidator(errs),
		executor:  NewUpsertExecutor(deps.Catalog, deps.Inventory, NewReferenceResolver(deps.Categories), opts, logger),
		logger:    logger,
		result: ImportResult{
			RunID:    opts.RunID,
			FileName: opts.FileName,
			ClientIP: opts.ClientIP,
			Behavior: opts.Behavior,
			Phase:    PhaseStarting,
		},
	}
}

// Snapshot returns a copy of the current progress. Safe to call from any
// goroutine while Run is in progress.
func (im *Importer) Snapshot() ImportResult {
	im.mu.Lock()
	snap := im.result
	snap.Failures = append([]FailedRow(nil), im.result.Failures...)
	if !snap.StartedAt.IsZero() && snap.Duration == 0 {
		snap.Duration = time.Since(snap.StartedAt)
	}
	im.mu.Unlock()

	snap.Errors = im.errs.Errors()
	snap.SkippedRows = im.errs.SkippedRows()
	if len(snap.Errors) > 0 {
		snap.ErrorSummary = im.errs.ErrorsByKind()
	}
	snap.Terminated = im.errs.HasToBeTerminated()
	return snap
}

// Run executes the import. The returned result is always non-nil. A non-nil
// error means the run stopped early because the source failed or ctx ended.
func (im *Importer) Run(ctx context.Context) (*ImportResult, error) {
	start := time.Now()
	im.update(func(r *ImportResult) { r.StartedAt = start })

	if im.opts.Behavior == BehaviorDelete {
		im.logger.Info("behavior is delete, nothing to import")
		return im.finish(start, PhaseDone, nil), nil
	}

	im.logger.Info("import started",
		"file", im.opts.FileName,
		"behavior", im.opts.Behavior,
		"strategy", im.opts.ValidationStrategy,
		"count_policy", im.opts.CountPolicy,
	)

	for {
		im.setPhase(PhaseStreaming)

		bunch, err := im.deps.Source.NextBunch(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return im.finish(start, PhaseCancelled, ctx.Err()), ctx.Err()
			}
			err = fmt.Errorf("read rows: %w", err)
			return im.finish(start, PhaseFailed, err), err
		}

		im.setPhase(PhaseChunkActive)
		accepted, err := im.acceptBunch(ctx, bunch)
		if err != nil {
			return im.finish(start, PhaseCancelled, err), err
		}

		if len(accepted) > 0 {
			im.setPhase(PhaseApplying)
			report := im.executor.ApplyRows(ctx, accepted)
			im.recordReport(report)
		}

		im.update(func(r *ImportResult) { r.Bunches++ })
		im.notify()
	}

	result := im.finish(start, PhaseDone, nil)
	im.logger.Info("import completed",
		"rows", result.RowsRead,
		"created", result.Counters.ItemsCreated,
		"updated", result.Counters.ItemsUpdated,
		"skipped", result.Counters.ItemsSkipped,
		"invalid", result.InvalidRows(),
		"failures", len(result.Failures),
		"duration", result.Duration,
	)
	return result, nil
}

// acceptBunch validates and groups the rows of one bunch. The returned rows
// are grouped by SKU: groups in order of first appearance, rows within a
// group in source order.
func (im *Importer) acceptBunch(ctx context.Context, bunch []SourceRow) ([]AcceptedRow, error) {
	var (
		order  []string
		groups = make(map[string][]AcceptedRow)
	)

	for _, sr := range bunch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		im.update(func(r *ImportResult) { r.RowsRead++ })

		if !im.validator.Validate(sr) {
			continue
		}

		if im.errs.HasToBeTerminated() {
			im.errs.AddRowToSkip(sr.Index)
			im.update(func(r *ImportResult) { r.Counters.ItemsSkipped++ })
			continue
		}

		projected := project(sr.Row)
		sku := projected.Get(ColumnSKU)
		if _, ok := groups[sku]; !ok {
			order = append(order, sku)
		}
		groups[sku] = append(groups[sku], AcceptedRow{Index: sr.Index, Line: sr.LineNumber(), Row: projected})

		im.update(func(r *ImportResult) {
			r.Counters.ItemsProcessed++
			if im.opts.CountPolicy == CountByIdentifier {
				if projected.Has(ColumnSKU) {
					r.Counters.ItemsUpdated++
				} else {
					r.Counters.ItemsCreated++
				}
			}
		})
	}

	accepted := make([]AcceptedRow, 0, len(bunch))
	for _, sku := range order {
		accepted = append(accepted, groups[sku]...)
	}
	return accepted, nil
}

func (im *Importer) recordReport(report ApplyReport) {
	im.update(func(r *ImportResult) {
		r.Failures = append(r.Failures, report.Failures...)
		if im.opts.CountPolicy == CountByExistence {
			existing := report.Existing()
			r.Counters.ItemsUpdated += existing
			r.Counters.ItemsCreated += len(report.Outcomes) - existing
		}
	})
}

// project keeps exactly the recognized columns.
func project(row Row) Row {
	out := make(Row, len(Columns))
	for _, col := range Columns {
		if v, ok := row[col]; ok {
			out[col] = v
		}
	}
	return out
}

func (im *Importer) finish(start time.Time, phase RunPhase, err error) *ImportResult {
	im.update(func(r *ImportResult) {
		r.Phase = phase
		r.Duration = time.Since(start)
		if err != nil {
			r.Error = err.Error()
		}
	})
	im.notify()

	snap := im.Snapshot()
	return &snap
}

func (im *Importer) setPhase(phase RunPhase) {
	changed := false
	im.update(func(r *ImportResult) {
		changed = r.Phase != phase
		r.Phase = phase
	})
	if changed {
		im.notify()
	}
}

func (im *Importer) update(fn func(*ImportResult)) {
	im.mu.Lock()
	fn(&im.result)
	im.mu.Unlock()
}

func (im *Importer) notify() {
	if im.opts.OnProgress != nil {
		im.opts.OnProgress(im.Snapshot())
	}
}
