// Package checkpoint persists fault ledgers between runs. The binary form is
// authoritative and read back by retry runs; a plain-text companion is
// written next to it for operators.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
)

// FormatVersion is the newest envelope version this package reads and writes.
const FormatVersion byte = 1

var magic = []byte("VCKP")

const headerLen = 5

var (
	// ErrUnsupportedVersion is returned for unknown magic or a newer format version.
	ErrUnsupportedVersion = errors.New("unsupported checkpoint format")
	// ErrCorrupt is returned when the envelope is recognized but its payload cannot be read.
	ErrCorrupt = errors.New("corrupt checkpoint")
	// ErrNotFound is returned when no checkpoint exists at the requested location.
	ErrNotFound = errors.New("checkpoint not found")
)

// Checkpoint is the decoded content of a checkpoint file.
type Checkpoint struct {
	RunID     string
	WrittenAt time.Time
	Faults    []crawler.FaultRecord
}

type document struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	WrittenAt time.Time `json:"written_at"`
	Records   []record  `json:"records"`
}

type record struct {
	ID         string    `json:"id"`
	Date       string    `json:"date,omitempty"`
	Origin     string    `json:"origin"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Encode serializes cp into the versioned binary envelope.
func Encode(cp Checkpoint) ([]byte, error) {
	doc := document{
		Version:   int(FormatVersion),
		RunID:     cp.RunID,
		WrittenAt: cp.WrittenAt.UTC(),
		Records:   make([]record, 0, len(cp.Faults)),
	}
	for _, f := range cp.Faults {
		rec := record{
			ID:         f.Unit.ID,
			Origin:     string(f.Unit.Origin),
			Kind:       string(f.Kind),
			Message:    f.Message,
			OccurredAt: f.OccurredAt.UTC(),
		}
		if f.Unit.HasDate() {
			rec.Date = f.Unit.Date.UTC().Format(crawler.DateLayout)
		}
		doc.Records = append(doc.Records, rec)
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	defer enc.Close()

	out := make([]byte, 0, headerLen+len(payload)/2)
	out = append(out, magic...)
	out = append(out, FormatVersion)
	return enc.EncodeAll(payload, out), nil
}

// Decode parses a binary envelope produced by Encode. Unknown JSON fields are
// ignored so newer writers of the same version stay readable.
func Decode(data []byte) (Checkpoint, error) {
	if len(data) < headerLen || !bytes.Equal(data[:len(magic)], magic) {
		return Checkpoint{}, fmt.Errorf("%w: missing header", ErrUnsupportedVersion)
	}
	version := data[len(magic)]
	if version == 0 || version > FormatVersion {
		return Checkpoint{}, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, version)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("init zstd decoder: %w", err)
	}
	defer dec.Close()

	payload, err := dec.DecodeAll(data[headerLen:], nil)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
	}
	var doc document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Version > int(FormatVersion) {
		return Checkpoint{}, fmt.Errorf("%w: document version %d", ErrUnsupportedVersion, doc.Version)
	}

	cp := Checkpoint{
		RunID:     doc.RunID,
		WrittenAt: doc.WrittenAt,
		Faults:    make([]crawler.FaultRecord, 0, len(doc.Records)),
	}
	for i, rec := range doc.Records {
		if rec.ID == "" {
			return Checkpoint{}, fmt.Errorf("%w: record %d has no id", ErrCorrupt, i)
		}
		kind := crawler.FaultKind(rec.Kind)
		if !kind.Valid() {
			return Checkpoint{}, fmt.Errorf("%w: record %d has unknown kind %q", ErrCorrupt, i, rec.Kind)
		}
		unit := crawler.WorkUnit{ID: rec.ID, Origin: crawler.Origin(rec.Origin)}
		if rec.Date != "" {
			d, err := crawler.ParseDate(rec.Date)
			if err != nil {
				return Checkpoint{}, fmt.Errorf("%w: record %d: %v", ErrCorrupt, i, err)
			}
			unit.Date = d
		}
		cp.Faults = append(cp.Faults, crawler.FaultRecord{
			Unit:       unit,
			Kind:       kind,
			Message:    rec.Message,
			OccurredAt: rec.OccurredAt,
		})
	}
	return cp, nil
}
