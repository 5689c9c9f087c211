package crawler

import (
	"fmt"
	"time"
)

// DateUnits returns one fresh unit per calendar day in [start, end], inclusive.
// Only the calendar day of each bound is used.
func DateUnits(start, end time.Time) ([]WorkUnit, error) {
	first := truncateDay(start)
	last := truncateDay(end)
	if last.Before(first) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, first.Format(DateLayout), last.Format(DateLayout))
	}
	days := int(last.Sub(first).Hours()/24) + 1
	units := make([]WorkUnit, 0, days)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		units = append(units, WorkUnit{
			ID:     d.Format(DateLayout),
			Date:   d,
			Origin: OriginFresh,
		})
	}
	return Dedupe(units), nil
}

// RetryUnits rebuilds one retry unit per prior fault.
func RetryUnits(faults []FaultRecord) []WorkUnit {
	units := make([]WorkUnit, 0, len(faults))
	for _, f := range faults {
		units = append(units, f.Unit.Retry())
	}
	return Dedupe(units)
}

// Dedupe drops units whose ID was already seen, keeping the first occurrence.
func Dedupe(units []WorkUnit) []WorkUnit {
	seen := make(map[string]struct{}, len(units))
	out := make([]WorkUnit, 0, len(units))
	for _, u := range units {
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return t, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
