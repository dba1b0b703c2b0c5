// Command importer runs one SKU import from a local CSV or XLSX file and
// prints the run report. With -dry-run it applies the file to in-memory
// stores and never touches the database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/skuimport/internal/config"
	"github.com/JonMunkholm/skuimport/internal/core"
	"github.com/JonMunkholm/skuimport/internal/logging"
	"github.com/JonMunkholm/skuimport/internal/source"
	"github.com/JonMunkholm/skuimport/internal/store/memory"
	"github.com/JonMunkholm/skuimport/internal/store/postgres"
)

func main() {
	var (
		file     = flag.String("file", "", "path to the .csv or .xlsx file to import")
		behavior = flag.String("behavior", "", "append, replace or delete (default from IMPORT_BEHAVIOR)")
		dryRun   = flag.Bool("dry-run", false, "apply to in-memory stores instead of the database")
		failures = flag.Bool("list-errors", false, "print every row error and failure")
	)
	flag.Parse()

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, *file, *behavior, *dryRun)
	if result != nil {
		printReport(os.Stdout, result, *failures)
	}
	if err != nil {
		msg := err.Error()
		if core.IsUserFacing(err) {
			msg = core.FormatUserError(err)
		}
		fmt.Fprintf(os.Stderr, "import failed: %s\n", msg)
		os.Exit(1)
	}
	if result.Phase != core.PhaseDone {
		os.Exit(2)
	}
}

func run(ctx context.Context, path, behavior string, dryRun bool) (*core.ImportResult, error) {
	if path == "" {
		return nil, core.ErrNoFile
	}

	var (
		cfg *config.Config
		err error
	)
	if dryRun {
		cfg, err = config.LoadOffline()
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	opts, err := cfg.Import.Options()
	if err != nil {
		return nil, err
	}
	if behavior != "" {
		if opts.Behavior, err = core.ParseBehavior(behavior); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	src, err := source.Open(path, f, cfg.Import.BunchSize)
	if err != nil {
		return nil, err
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	deps := core.Deps{Source: src}
	var history core.HistoryStore
	if dryRun {
		deps.Catalog = memory.NewCatalog()
		deps.Inventory = memory.NewInventory()
		deps.Categories = memory.NewCategories()
	} else {
		poolConfig, err := cfg.Database.PoolConfig()
		if err != nil {
			return nil, err
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()

		stores := postgres.New(pool)
		deps.Catalog = stores.Catalog
		deps.Inventory = stores.Inventory
		deps.Categories = stores.Categories
		history = stores.History
	}

	opts.RunID = uuid.New().String()
	opts.FileName = path
	opts.Logger = logging.WithFields(ctx, "file", path, "dry_run", dryRun)
	opts.OnProgress = func(r core.ImportResult) {
		opts.Logger.Debug("progress", "phase", r.Phase, "rows_read", r.RowsRead, "bunches", r.Bunches)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Import.Timeout)
	defer cancel()

	result, err := core.NewImporter(deps, opts).Run(runCtx)
	if history != nil && result != nil {
		if herr := history.RecordRun(context.WithoutCancel(ctx), core.NewRunRecord(result)); herr != nil {
			opts.Logger.Error("record run history failed", "error", herr)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return result, err
	}
	return result, nil
}

func printReport(w io.Writer, r *core.ImportResult, details bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", r.RunID)
	fmt.Fprintf(tw, "behavior\t%s\n", r.Behavior)
	fmt.Fprintf(tw, "status\t%s\n", r.Phase)
	fmt.Fprintf(tw, "rows read\t%d\n", r.RowsRead)
	fmt.Fprintf(tw, "created\t%d\n", r.Counters.ItemsCreated)
	fmt.Fprintf(tw, "updated\t%d\n", r.Counters.ItemsUpdated)
	fmt.Fprintf(tw, "processed\t%d\n", r.Counters.ItemsProcessed)
	fmt.Fprintf(tw, "skipped\t%d\n", r.Counters.ItemsSkipped)
	fmt.Fprintf(tw, "invalid rows\t%d\n", r.InvalidRows())
	fmt.Fprintf(tw, "apply failures\t%d\n", len(r.Failures))
	fmt.Fprintf(tw, "duration\t%s\n", r.Duration)
	if r.Terminated {
		fmt.Fprintf(tw, "terminated\tyes\n")
	}
	if r.Error != "" {
		fmt.Fprintf(tw, "error\t%s\n", r.Error)
	}
	for _, kind := range sortedKinds(r.ErrorSummary) {
		fmt.Fprintf(tw, "  %s\t%d\n", kind, r.ErrorSummary[kind])
	}
	tw.Flush()

	if !details {
		return
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  line %d: %s %s: %s\n", f.LineNumber, f.Stage, f.SKU, f.Reason)
	}
	if len(r.SkippedRows) > 0 {
		fmt.Fprintf(w, "  skipped row indices: %s\n", joinInts(r.SkippedRows))
	}
}

func sortedKinds(summary map[core.ErrorKind]int) []core.ErrorKind {
	kinds := make([]core.ErrorKind, 0, len(summary))
	for k := range summary {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
