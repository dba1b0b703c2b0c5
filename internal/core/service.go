package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/skuimport/internal/logging"
)

var (
	// ErrRunNotFound is returned for run ids the service does not track.
	ErrRunNotFound = errors.New("import run not found")

	// ErrNoFile is returned by StartImport when the request has no source.
	ErrNoFile = errors.New("no file provided")
)

const (
	// DefaultRunTimeout bounds a single run when none is configured.
	DefaultRunTimeout = 30 * time.Minute

	// DefaultRetention is how long a finished run stays queryable in memory.
	DefaultRetention = 15 * time.Minute

	historyWriteTimeout = 5 * time.Second
)

// Stores groups the collaborators shared by every run.
type Stores struct {
	Catalog    CatalogStore
	Inventory  InventoryStore
	Categories CategoryDirectory
	History    HistoryStore // optional
}

// ServiceConfig holds per-service settings. Defaults is the template for
// each run's Options; RunID, FileName and Behavior are filled per request.
type ServiceConfig struct {
	Defaults      Options
	RunTimeout    time.Duration
	Retention     time.Duration
	MaxConcurrent int
	MaxWait       time.Duration
}

// ImportRequest describes one import to start.
type ImportRequest struct {
	FileName string
	Behavior Behavior // empty uses the configured default
	Source   RowSource
}

// Service runs imports in the background and tracks their progress.
type Service struct {
	stores  Stores
	cfg     ServiceConfig
	limiter *RunLimiter
	logger  *slog.Logger

	mu   sync.RWMutex
	runs map[string]*activeRun
}

type activeRun struct {
	id       string
	source   RowSource
	importer *Importer
	cancel   context.CancelFunc
	done     chan struct{}
	result   *ImportResult
}

// NewService creates a service over the shared stores.
func NewService(stores Stores, cfg ServiceConfig) *Service {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	logger := cfg.Defaults.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		stores:  stores,
		cfg:     cfg,
		limiter: NewRunLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		logger:  logger,
		runs:    make(map[string]*activeRun),
	}
}

// StartImport queues an import and returns its run id immediately.
// It waits for a free slot and returns ErrTooManyRuns if none frees up in time.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (string, error) {
	if req.Source == nil {
		return "", ErrNoFile
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	runID := uuid.New().String()

	// The run outlives the request but keeps its values (request id).
	runCtx := logging.ContextWithRunID(context.WithoutCancel(ctx), runID)
	runCtx, cancel := context.WithTimeout(runCtx, s.cfg.RunTimeout)

	opts := s.cfg.Defaults
	opts.RunID = runID
	opts.FileName = req.FileName
	opts.ClientIP = ClientIPFromContext(ctx)
	opts.Logger = logging.Enrich(ctx, opts.Logger)
	if req.Behavior != "" {
		opts.Behavior = req.Behavior
	}

	run := &activeRun{
		id:     runID,
		source: req.Source,
		cancel: cancel,
		done:   make(chan struct{}),
		importer: NewImporter(Deps{
			Source:     req.Source,
			Catalog:    s.stores.Catalog,
			Inventory:  s.stores.Inventory,
			Categories: s.stores.Categories,
		}, opts),
	}

	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	go s.process(runCtx, run)

	return runID, nil
}

func (s *Service) process(ctx context.Context, run *activeRun) {
	defer s.limiter.Release()
	defer run.cancel()
	defer func() {
		if c, ok := run.source.(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.logger.Warn("close row source failed", "run_id", run.id, "error", err)
			}
		}
	}()

	var result *ImportResult
	defer func() {
		if r := recover(); r != nil {
			logging.Critical(ctx, s.logger, "panic in import run", "run_id", run.id, "panic", r)
			snap := run.importer.Snapshot()
			snap.Phase = PhaseFailed
			snap.Error = fmt.Sprintf("internal error: %v", r)
			result = &snap
		}
		s.complete(ctx, run, result)
	}()

	result, _ = run.importer.Run(ctx)
}

func (s *Service) complete(ctx context.Context, run *activeRun, result *ImportResult) {
	// History is written before done closes so waiters see the record.
	if s.stores.History != nil && result != nil {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
		if err := s.stores.History.RecordRun(hctx, NewRunRecord(result)); err != nil {
			s.logger.Error("record run history failed", "run_id", run.id, "error", err)
		}
		cancel()
	}

	s.mu.Lock()
	run.result = result
	s.mu.Unlock()
	close(run.done)

	time.AfterFunc(s.cfg.Retention, func() {
		s.mu.Lock()
		delete(s.runs, run.id)
		s.mu.Unlock()
	})
}

func (s *Service) lookup(runID string) (*activeRun, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// GetRun returns the final result of a finished run or a progress snapshot
// of a running one.
func (s *Service) GetRun(runID string) (ImportResult, error) {
	run, err := s.lookup(runID)
	if err != nil {
		return ImportResult{}, err
	}

	s.mu.RLock()
	result := run.result
	s.mu.RUnlock()
	if result != nil {
		return *result, nil
	}
	return run.importer.Snapshot(), nil
}

// WaitRun blocks until the run finishes or ctx ends.
func (s *Service) WaitRun(ctx context.Context, runID string) (*ImportResult, error) {
	run, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}

	select {
	case <-run.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return run.result, nil
}

// CancelRun stops a running import. Cancelling a finished run is a no-op.
func (s *Service) CancelRun(runID string) error {
	run, err := s.lookup(runID)
	if err != nil {
		return err
	}
	run.cancel()
	return nil
}

// CancelAll cancels every run that has not finished and returns how many
// it cancelled.
func (s *Service) CancelAll() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, run := range s.runs {
		select {
		case <-run.done:
			continue
		default:
		}
		run.cancel()
		n++
	}
	if n > 0 {
		s.logger.Warn("cancelled active imports", "count", n)
	}
	return n
}

// ListHistory returns up to limit finished runs, newest first.
func (s *Service) ListHistory(ctx context.Context, limit int) ([]RunRecord, error) {
	if s.stores.History == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	records, err := s.stores.History.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list run history: %w", err)
	}
	return records, nil
}

// LimiterStatus reports slot usage for health endpoints.
func (s *Service) LimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// Drain waits for every active run to release its slot.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.Drain(ctx)
}
