// Package ledger accumulates the fault records of a single crawl run.
package ledger

import (
	"sync"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
)

// Ledger is an ordered, append-only collection of faults that is safe for
// concurrent use. It never de-duplicates.
type Ledger struct {
	mu      sync.Mutex
	records []crawler.FaultRecord
}

// New returns a ledger seeded with initial records.
func New(initial ...crawler.FaultRecord) *Ledger {
	return &Ledger{records: append([]crawler.FaultRecord(nil), initial...)}
}

// Append adds a record at the end of the ledger.
func (l *Ledger) Append(record crawler.FaultRecord) {
	l.mu.Lock()
	l.records = append(l.records, record)
	l.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the ledger.
func (l *Ledger) Snapshot() []crawler.FaultRecord {
	l.mu.Lock()
	out := make([]crawler.FaultRecord, len(l.records))
	copy(out, l.records)
	l.mu.Unlock()
	return out
}

// Len returns the number of records appended so far.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

var _ crawler.FaultRecorder = (*Ledger)(nil)
