package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/sys/atomicwriter"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
	"github.com/JakeFAU/verdict-crawler/internal/metrics"
)

const (
	// TextFileName is the fixed name of the human-readable companion file.
	TextFileName = "faults.txt"
	// Extension is the suffix of binary checkpoint files.
	Extension = ".ckpt"

	filePrefix  = "faults-"
	stampLayout = "20060102T150405.000000000Z"
)

// Mirror receives a copy of every binary checkpoint written locally.
type Mirror interface {
	Upload(ctx context.Context, name string, data []byte) error
}

// Writer stores checkpoints under a directory.
type Writer struct {
	dir    string
	mirror Mirror
	clock  crawler.Clock
	logger *zap.Logger
}

// Option customizes a Writer.
type Option func(*Writer)

// WithMirror uploads each checkpoint to m after the local write succeeds.
func WithMirror(m Mirror) Option {
	return func(w *Writer) { w.mirror = m }
}

// WithClock overrides the clock used to stamp checkpoints.
func WithClock(c crawler.Clock) Option {
	return func(w *Writer) { w.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

// NewWriter creates dir if needed and returns a Writer targeting it.
func NewWriter(dir string, opts ...Option) (*Writer, error) {
	if dir == "" {
		return nil, errors.New("checkpoint directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	w := &Writer{dir: dir, clock: crawler.SystemClock, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	if w.clock == nil {
		w.clock = crawler.SystemClock
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	return w, nil
}

// Dir returns the target directory.
func (w *Writer) Dir() string { return w.dir }

// Write atomically stores faults as a new timestamped binary checkpoint and
// replaces the text companion. It returns the binary file's path.
func (w *Writer) Write(ctx context.Context, runID string, faults []crawler.FaultRecord) (string, error) {
	now := w.clock.Now().UTC()
	data, err := Encode(Checkpoint{RunID: runID, WrittenAt: now, Faults: faults})
	if err != nil {
		metrics.ObserveCheckpointWrite(false)
		return "", err
	}

	name := FileName(now)
	path := filepath.Join(w.dir, name)
	var errs error
	if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("write %s: %w", path, err))
	}
	textPath := filepath.Join(w.dir, TextFileName)
	if err := atomicwriter.WriteFile(textPath, RenderText(faults), 0o644); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("write %s: %w", textPath, err))
	}
	if errs != nil {
		metrics.ObserveCheckpointWrite(false)
		return "", errs
	}
	metrics.ObserveCheckpointWrite(true)
	w.logger.Info("checkpoint written",
		zap.String("path", path),
		zap.String("run_id", runID),
		zap.Int("records", len(faults)),
	)

	if w.mirror != nil {
		if err := w.mirror.Upload(ctx, name, data); err != nil {
			w.logger.Warn("checkpoint mirror upload failed", zap.String("name", name), zap.Error(err))
		}
	}
	return path, nil
}

// FileName returns the binary checkpoint name for a write at t. Names sort
// lexically in write order.
func FileName(t time.Time) string {
	return filePrefix + t.UTC().Format(stampLayout) + Extension
}

// RenderText renders one fault per line.
func RenderText(faults []crawler.FaultRecord) []byte {
	var buf bytes.Buffer
	for _, f := range faults {
		buf.WriteString(f.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
