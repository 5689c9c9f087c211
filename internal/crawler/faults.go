package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// FaultKind classifies why a unit failed.
type FaultKind string

// Fault classifications.
const (
	FaultTimeout            FaultKind = "timeout"
	FaultNotFound           FaultKind = "not_found"
	FaultMalformed          FaultKind = "malformed"
	FaultPersistenceFailure FaultKind = "persistence_failure"
	FaultCancelled          FaultKind = "cancelled"
	FaultUnexpected         FaultKind = "unexpected"
)

// Sentinel errors ports wrap so failures can be classified where they happen.
var (
	ErrTimeout     = errors.New("timed out")
	ErrNotFound    = errors.New("not found")
	ErrMalformed   = errors.New("malformed document")
	ErrPersistence = errors.New("persistence failed")
	ErrCancelled   = errors.New("cancelled before dispatch")
)

// ErrInvalidRange is returned when a crawl's end date precedes its start date.
var ErrInvalidRange = errors.New("end date precedes start date")

// Valid reports whether k is one of the known classifications.
func (k FaultKind) Valid() bool {
	switch k {
	case FaultTimeout, FaultNotFound, FaultMalformed, FaultPersistenceFailure, FaultCancelled, FaultUnexpected:
		return true
	default:
		return false
	}
}

// Classify maps an error returned by a port to a fault kind.
func Classify(err error) FaultKind {
	if err == nil {
		return FaultUnexpected
	}
	switch {
	case errors.Is(err, ErrPersistence):
		return FaultPersistenceFailure
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FaultTimeout
	case errors.Is(err, ErrNotFound):
		return FaultNotFound
	case errors.Is(err, ErrMalformed):
		return FaultMalformed
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return FaultCancelled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FaultTimeout
	}
	return FaultUnexpected
}

// FaultRecord is the immutable evidence that a unit failed.
type FaultRecord struct {
	Unit       WorkUnit  `json:"unit"`
	Kind       FaultKind `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewFault builds a fault for unit from err, classifying it.
func NewFault(unit WorkUnit, err error, at time.Time) FaultRecord {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return FaultRecord{
		Unit:       unit,
		Kind:       Classify(err),
		Message:    msg,
		OccurredAt: at.UTC(),
	}
}

// CancelledFault records a unit that was never attempted because the run stopped.
func CancelledFault(unit WorkUnit, at time.Time) FaultRecord {
	return FaultRecord{
		Unit:       unit,
		Kind:       FaultCancelled,
		Message:    ErrCancelled.Error(),
		OccurredAt: at.UTC(),
	}
}

// String renders the record on a single line for the text checkpoint.
func (f FaultRecord) String() string {
	msg := strings.Join(strings.Fields(f.Message), " ")
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%s",
		f.OccurredAt.UTC().Format(time.RFC3339),
		f.Unit.ID,
		f.Unit.Origin,
		f.Kind,
		msg,
	)
}
