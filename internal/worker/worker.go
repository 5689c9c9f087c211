// Package worker implements the per-unit fetch, persist, and fault pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
	"github.com/JakeFAU/verdict-crawler/internal/metrics"
	"github.com/JakeFAU/verdict-crawler/internal/queue/memory"
)

// DefaultTimeout bounds a single fetch when Config.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// Source hands out work units; it is the only contended operation between workers.
type Source interface {
	Dequeue(ctx context.Context) (crawler.WorkUnit, error)
}

// Config controls Worker behavior.
type Config struct {
	Timeout      time.Duration
	StoreTimeout time.Duration
	Filters      crawler.Filters
}

// Tally counts unit outcomes across all workers of a run.
type Tally struct {
	succeeded atomic.Int64
	skipped   atomic.Int64
	faulted   atomic.Int64
}

// Summary returns the counts observed so far. Total and Cancelled are left to the caller.
func (t *Tally) Summary() crawler.Summary {
	return crawler.Summary{
		Succeeded: int(t.succeeded.Load()),
		Skipped:   int(t.skipped.Load()),
		Faulted:   int(t.faulted.Load()),
	}
}

// Worker consumes units and runs each one through fetch then store.
type Worker struct {
	source  Source
	fetcher crawler.Fetcher
	store   crawler.VerdictStore
	faults  crawler.FaultRecorder
	tally   *Tally
	clock   crawler.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker.
func New(
	source Source,
	fetcher crawler.Fetcher,
	store crawler.VerdictStore,
	faults crawler.FaultRecorder,
	tally *Tally,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = cfg.Timeout
	}
	if tally == nil {
		tally = &Tally{}
	}
	if clock == nil {
		clock = crawler.SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		source:  source,
		fetcher: fetcher,
		store:   store,
		faults:  faults,
		tally:   tally,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run consumes units until the source is exhausted or ctx is done. The stop
// signal is only observed between units; a unit already dequeued always finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		unit, err := w.source.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, memory.ErrClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			return
		}
		w.logger.Debug("dequeued unit", zap.String("unit_id", unit.ID))
		w.process(ctx, unit)
	}
}

func (w *Worker) process(ctx context.Context, unit crawler.WorkUnit) {
	metrics.IncInflight()
	defer metrics.DecInflight()

	workCtx := context.WithoutCancel(ctx)

	start := time.Now()
	res, err := w.fetch(workCtx, unit)
	if err != nil {
		metrics.ObserveFetch(metrics.OutcomeFaulted, time.Since(start))
		w.recordFault(unit, err)
		return
	}
	if res.Skipped {
		metrics.ObserveFetch(metrics.OutcomeSkipped, time.Since(start))
		w.tally.skipped.Add(1)
		metrics.ObserveUnit(string(unit.Origin), metrics.OutcomeSkipped)
		w.logger.Info("unit skipped by filters",
			zap.String("unit_id", unit.ID),
			zap.String("reason", res.SkipReason),
		)
		return
	}
	metrics.ObserveFetch(metrics.OutcomeSucceeded, time.Since(start))

	if res.Record.UnitID == "" {
		res.Record.UnitID = unit.ID
	}
	if err := w.persist(workCtx, res.Record); err != nil {
		w.recordFault(unit, err)
		return
	}

	w.tally.succeeded.Add(1)
	metrics.ObserveUnit(string(unit.Origin), metrics.OutcomeSucceeded)
	metrics.AddVerdictsStored(len(res.Record.Verdicts))
	w.logger.Debug("unit stored",
		zap.String("unit_id", unit.ID),
		zap.Int("verdicts", len(res.Record.Verdicts)),
	)
}

type fetchOutcome struct {
	res crawler.FetchResult
	err error
}

// fetch enforces the per-call timeout even when the fetcher ignores its
// context. A fetch that overruns is recorded as a timeout, but the worker
// keeps its slot until the call returns so the pool never has more than one
// fetch in flight per worker.
func (w *Worker) fetch(ctx context.Context, unit crawler.WorkUnit) (crawler.FetchResult, error) {
	if w.fetcher == nil {
		return crawler.FetchResult{}, errors.New("no fetcher configured")
	}
	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	done := make(chan fetchOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchOutcome{err: fmt.Errorf("fetcher panic: %v", r)}
			}
		}()
		res, err := w.fetcher.Fetch(fetchCtx, unit, w.cfg.Filters)
		done <- fetchOutcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return crawler.FetchResult{}, fmt.Errorf("fetch %s: %w", unit.ID, out.err)
		}
		return out.res, nil
	case <-fetchCtx.Done():
	}

	start := time.Now()
	w.logger.Warn("fetch exceeded timeout, waiting for it to return",
		zap.String("unit_id", unit.ID),
		zap.Duration("timeout", w.cfg.Timeout),
	)
	<-done
	w.logger.Debug("overrunning fetch returned",
		zap.String("unit_id", unit.ID),
		zap.Duration("overrun", time.Since(start)),
	)
	return crawler.FetchResult{}, fmt.Errorf("fetch %s after %s: %w", unit.ID, w.cfg.Timeout, crawler.ErrTimeout)
}

func (w *Worker) persist(ctx context.Context, record crawler.Record) (err error) {
	if w.store == nil {
		return fmt.Errorf("%w: no store configured", crawler.ErrPersistence)
	}
	storeCtx, cancel := context.WithTimeout(ctx, w.cfg.StoreTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: store panic: %v", crawler.ErrPersistence, r)
		}
	}()
	if err := w.store.StoreRecord(storeCtx, record, crawler.StoreOptions{FullText: w.cfg.Filters.FullText}); err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrPersistence, err)
	}
	return nil
}

func (w *Worker) recordFault(unit crawler.WorkUnit, err error) {
	fault := crawler.NewFault(unit, err, w.clock.Now())
	if w.faults != nil {
		w.faults.Append(fault)
	}
	w.tally.faulted.Add(1)
	metrics.ObserveUnit(string(unit.Origin), metrics.OutcomeFaulted)
	metrics.ObserveFault(string(fault.Kind))
	w.logger.Warn("unit faulted",
		zap.String("unit_id", unit.ID),
		zap.String("origin", string(unit.Origin)),
		zap.String("kind", string(fault.Kind)),
		zap.Error(err),
	)
}
