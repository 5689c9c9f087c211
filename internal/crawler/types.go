package crawler

import (
	"time"
)

// Origin tells whether a unit came from a date range or from a prior fault ledger.
type Origin string

// Work unit origins.
const (
	OriginFresh Origin = "fresh"
	OriginRetry Origin = "retry"
)

// DateLayout is the layout used for date-derived unit identifiers.
const DateLayout = "2006-01-02"

// WorkUnit identifies one retrievable listing or record.
type WorkUnit struct {
	ID     string    `json:"id"`
	Date   time.Time `json:"date"`
	Origin Origin    `json:"origin"`
}

// HasDate reports whether the unit was derived from a source date.
func (u WorkUnit) HasDate() bool {
	return !u.Date.IsZero()
}

// Retry returns a copy of the unit tagged for a retry run.
func (u WorkUnit) Retry() WorkUnit {
	u.Origin = OriginRetry
	return u
}

// Filters are forwarded untouched to the Fetcher; FullText also reaches the store.
type Filters struct {
	SkipConfidential bool `json:"skip_confidential" mapstructure:"skip_confidential"`
	IncludeTechnical bool `json:"include_technical" mapstructure:"include_technical"`
	FullText         bool `json:"full_text" mapstructure:"full_text"`
}

// StoreOptions controls how a record is persisted.
type StoreOptions struct {
	FullText bool
}

// Verdict is one extracted court decision.
type Verdict struct {
	Reference    string    `json:"reference"`
	CaseNumber   string    `json:"case_number"`
	Court        string    `json:"court"`
	DecisionDate time.Time `json:"decision_date"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Technical    bool      `json:"technical"`
	FullText     string    `json:"full_text,omitempty"`
	ContentHash  string    `json:"content_hash,omitempty"`
}

// Record is everything extracted for a single work unit.
type Record struct {
	UnitID    string
	SourceURL string
	Verdicts  []Verdict
}

// FetchResult is returned by a Fetcher. A skipped result is neither a fault nor persisted.
type FetchResult struct {
	Record     Record
	Skipped    bool
	SkipReason string
}

// Summary counts how every unit of a run was accounted for.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Faulted   int `json:"faulted"`
	Cancelled int `json:"cancelled"`
}

// Accounted returns the number of units with a known outcome.
func (s Summary) Accounted() int {
	return s.Succeeded + s.Skipped + s.Faulted + s.Cancelled
}
