package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves and extracts the record behind a work unit. The per-call
// timeout is carried by ctx.
type Fetcher interface {
	Fetch(ctx context.Context, unit WorkUnit, filters Filters) (FetchResult, error)
}

// VerdictStore durably persists an extracted record. Storing one record is atomic.
type VerdictStore interface {
	StoreRecord(ctx context.Context, record Record, opts StoreOptions) error
}

// FaultRecorder accepts faults from concurrent workers.
type FaultRecorder interface {
	Append(record FaultRecord)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reports wall-clock time in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
