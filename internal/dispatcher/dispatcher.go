// Package dispatcher runs a bounded pool of workers over a shared work queue.
package dispatcher

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/verdict-crawler/internal/metrics"
)

// Concurrency bounds accepted by the pool.
const (
	MinConcurrency = 1
	MaxConcurrency = 10
)

// Runner is a worker loop that returns once its source is exhausted or ctx ends.
type Runner interface {
	Run(ctx context.Context)
}

// ClampConcurrency forces n into [MinConcurrency, MaxConcurrency] and reports whether it changed.
func ClampConcurrency(n int) (int, bool) {
	switch {
	case n < MinConcurrency:
		return MinConcurrency, true
	case n > MaxConcurrency:
		return MaxConcurrency, true
	default:
		return n, false
	}
}

// Dispatcher fans out queue work to a fixed pool of workers.
type Dispatcher struct {
	workers []Runner
	logger  *zap.Logger
}

// New builds a pool of concurrency workers using newWorker. Out-of-range
// concurrency values are clamped.
func New(concurrency int, newWorker func(index int) Runner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	n, clamped := ClampConcurrency(concurrency)
	if clamped {
		logger.Warn("concurrency out of range, clamped",
			zap.Int("requested", concurrency),
			zap.Int("effective", n),
		)
	}
	workers := make([]Runner, 0, n)
	for i := 0; i < n; i++ {
		workers = append(workers, newWorker(i))
	}
	return &Dispatcher{workers: workers, logger: logger}
}

// Size returns the number of workers in the pool.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run starts all workers and blocks until every one of them has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var g errgroup.Group
	for _, w := range d.workers {
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			w.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()
	d.logger.Debug("all workers stopped", zap.Int("workers", len(d.workers)))
}
