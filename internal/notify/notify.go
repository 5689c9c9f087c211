// Package notify publishes the faults of a finished run to downstream
// consumers so they can be triaged without reading checkpoint files.
package notify

import (
	"context"
	"time"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
)

// Notifier delivers fault events for a run.
type Notifier interface {
	NotifyFaults(ctx context.Context, runID string, faults []crawler.FaultRecord) error
	Close() error
}

// Event is the wire form of one fault.
type Event struct {
	RunID      string    `json:"run_id"`
	UnitID     string    `json:"unit_id"`
	Date       string    `json:"date,omitempty"`
	Origin     string    `json:"origin"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Events converts faults into events.
func Events(runID string, faults []crawler.FaultRecord) []Event {
	out := make([]Event, 0, len(faults))
	for _, f := range faults {
		ev := Event{
			RunID:      runID,
			UnitID:     f.Unit.ID,
			Origin:     string(f.Unit.Origin),
			Kind:       string(f.Kind),
			Message:    f.Message,
			OccurredAt: f.OccurredAt.UTC(),
		}
		if f.Unit.HasDate() {
			ev.Date = f.Unit.Date.Format(crawler.DateLayout)
		}
		out = append(out, ev)
	}
	return out
}

// Nop discards every notification.
type Nop struct{}

// NotifyFaults does nothing.
func (Nop) NotifyFaults(context.Context, string, []crawler.FaultRecord) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
