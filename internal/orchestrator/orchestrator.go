// Package orchestrator turns a date range or a prior fault ledger into work
// units, runs them through a bounded worker pool, and owns the resulting
// fault ledger.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
	"github.com/JakeFAU/verdict-crawler/internal/dispatcher"
	"github.com/JakeFAU/verdict-crawler/internal/ledger"
	"github.com/JakeFAU/verdict-crawler/internal/metrics"
	"github.com/JakeFAU/verdict-crawler/internal/queue/memory"
	"github.com/JakeFAU/verdict-crawler/internal/worker"
)

// ErrRunInProgress is returned when a run is started while another one is active.
var ErrRunInProgress = errors.New("crawl run already in progress")

// Mode tells how the work set of a run was produced.
type Mode string

// Run modes.
const (
	ModeCrawl Mode = "crawl"
	ModeRetry Mode = "retry"
)

// Config controls pool size and per-unit timeouts.
type Config struct {
	Concurrency  int
	Timeout      time.Duration
	StoreTimeout time.Duration
}

// Result is the outcome of one run. Faults is the finalized ledger snapshot.
type Result struct {
	RunID      string
	Mode       Mode
	Faults     []crawler.FaultRecord
	Summary    crawler.Summary
	Cancelled  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Orchestrator supervises one crawl run at a time.
type Orchestrator struct {
	fetcher crawler.Fetcher
	store   crawler.VerdictStore
	clock   crawler.Clock
	cfg     Config
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	ledger  *ledger.Ledger
	runID   string
}

// New constructs an Orchestrator.
func New(
	fetcher crawler.Fetcher,
	store crawler.VerdictStore,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if clock == nil {
		clock = crawler.SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		fetcher: fetcher,
		store:   store,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
		ledger:  ledger.New(),
	}
}

// Crawl fetches every day in [start, end]. An inverted range fails before any
// work is dispatched.
func (o *Orchestrator) Crawl(ctx context.Context, start, end time.Time, filters crawler.Filters) (Result, error) {
	return o.run(ctx, ModeCrawl, filters, func() ([]crawler.WorkUnit, error) {
		return crawler.DateUnits(start, end)
	})
}

// RetryCrawl dispatches exactly one retry unit per distinct prior fault.
func (o *Orchestrator) RetryCrawl(ctx context.Context, prior []crawler.FaultRecord, filters crawler.Filters) (Result, error) {
	return o.run(ctx, ModeRetry, filters, func() ([]crawler.WorkUnit, error) {
		return crawler.RetryUnits(prior), nil
	})
}

// Cancel stops dispatching. In-flight units finish; queued units become
// cancelled faults. It is a no-op when no run is active.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running || o.cancel == nil {
		return
	}
	o.logger.Info("cancellation requested", zap.String("run_id", o.runID))
	o.cancel()
}

// RetryList returns a snapshot of the current or most recent run's ledger.
func (o *Orchestrator) RetryList() []crawler.FaultRecord {
	o.mu.Lock()
	l := o.ledger
	o.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.Snapshot()
}

// RunID returns the identifier of the current or most recent run.
func (o *Orchestrator) RunID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runID
}

func (o *Orchestrator) run(
	ctx context.Context,
	mode Mode,
	filters crawler.Filters,
	generate func() ([]crawler.WorkUnit, error),
) (Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runID, err := newRunID()
	if err != nil {
		return Result{Mode: mode}, err
	}
	faults, err := o.begin(runID, cancel)
	if err != nil {
		return Result{Mode: mode}, err
	}
	defer o.end()

	res := Result{RunID: runID, Mode: mode, StartedAt: o.clock.Now()}
	logger := o.logger.With(zap.String("run_id", runID), zap.String("mode", string(mode)))

	units, err := safeGenerate(generate)
	if err != nil {
		metrics.ObserveRun(string(mode), "error")
		res.Faults = faults.Snapshot()
		res.FinishedAt = o.clock.Now()
		return res, fmt.Errorf("generate work units: %w", err)
	}
	res.Summary.Total = len(units)
	if len(units) == 0 {
		logger.Info("no work units to dispatch")
		metrics.ObserveRun(string(mode), "completed")
		res.Faults = faults.Snapshot()
		res.FinishedAt = o.clock.Now()
		return res, nil
	}

	q := memory.NewBatch(units)
	tally := &worker.Tally{}
	workerCfg := worker.Config{
		Timeout:      o.cfg.Timeout,
		StoreTimeout: o.cfg.StoreTimeout,
		Filters:      filters,
	}
	pool := dispatcher.New(o.cfg.Concurrency, func(i int) dispatcher.Runner {
		return worker.New(q, o.fetcher, o.store, faults, tally, o.clock, workerCfg,
			logger.Named("worker").With(zap.Int("index", i)))
	}, logger)

	logger.Info("crawl started",
		zap.Int("units", len(units)),
		zap.Int("workers", pool.Size()),
		zap.Bool("skip_confidential", filters.SkipConfidential),
		zap.Bool("include_technical", filters.IncludeTechnical),
		zap.Bool("full_text", filters.FullText),
	)
	pool.Run(runCtx)

	undispatched := q.Drain()
	now := o.clock.Now()
	for _, u := range undispatched {
		faults.Append(crawler.CancelledFault(u, now))
		metrics.ObserveUnit(string(u.Origin), metrics.OutcomeCancelled)
		metrics.ObserveFault(string(crawler.FaultCancelled))
	}

	counts := tally.Summary()
	res.Summary.Succeeded = counts.Succeeded
	res.Summary.Skipped = counts.Skipped
	res.Summary.Faulted = counts.Faulted
	res.Summary.Cancelled = len(undispatched)
	res.Cancelled = runCtx.Err() != nil
	res.Faults = faults.Snapshot()
	res.FinishedAt = o.clock.Now()

	result := "completed"
	if res.Cancelled {
		result = "cancelled"
	}
	metrics.ObserveRun(string(mode), result)
	logger.Info("crawl finished",
		zap.String("result", result),
		zap.Int("total", res.Summary.Total),
		zap.Int("succeeded", res.Summary.Succeeded),
		zap.Int("skipped", res.Summary.Skipped),
		zap.Int("faulted", res.Summary.Faulted),
		zap.Int("cancelled", res.Summary.Cancelled),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	if res.Summary.Accounted() != res.Summary.Total {
		logger.Error("unit accounting mismatch",
			zap.Int("accounted", res.Summary.Accounted()),
			zap.Int("total", res.Summary.Total),
		)
	}
	return res, nil
}

func (o *Orchestrator) begin(runID string, cancel context.CancelFunc) (*ledger.Ledger, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil, ErrRunInProgress
	}
	o.running = true
	o.cancel = cancel
	o.runID = runID
	o.ledger = ledger.New()
	return o.ledger, nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	o.cancel = nil
}

func safeGenerate(generate func() ([]crawler.WorkUnit, error)) (units []crawler.WorkUnit, err error) {
	defer func() {
		if r := recover(); r != nil {
			units, err = nil, fmt.Errorf("work generation panicked: %v", r)
		}
	}()
	return generate()
}

func newRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}
