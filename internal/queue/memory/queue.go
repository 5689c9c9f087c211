// Package memory provides the in-process work queue used by a crawl run.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
)

// ErrClosed is returned by Dequeue once the queue is closed and empty.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue of work units with context-aware operations.
type Queue struct {
	ch      chan crawler.WorkUnit
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan crawler.WorkUnit, capacity),
	}
}

// NewBatch returns a closed queue pre-filled with units, ready to be drained by workers.
func NewBatch(units []crawler.WorkUnit) *Queue {
	q := NewQueue(len(units))
	for _, u := range units {
		q.ch <- u
	}
	q.Close()
	return q
}

// Enqueue pushes a unit into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, unit crawler.WorkUnit) error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- unit:
		return nil
	}
}

// Dequeue pops the next unit. A finished context always wins over pending work.
func (q *Queue) Dequeue(ctx context.Context) (crawler.WorkUnit, error) {
	if err := ctx.Err(); err != nil {
		return crawler.WorkUnit{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return crawler.WorkUnit{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case unit, ok := <-q.ch:
		if !ok {
			return crawler.WorkUnit{}, ErrClosed
		}
		return unit, nil
	}
}

// Drain removes and returns every unit still waiting in the queue without blocking.
func (q *Queue) Drain() []crawler.WorkUnit {
	var out []crawler.WorkUnit
	for {
		select {
		case unit, ok := <-q.ch:
			if !ok {
				return out
			}
			out = append(out, unit)
		default:
			return out
		}
	}
}

// Len returns the number of units waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel; queued units remain available to Dequeue and Drain.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
