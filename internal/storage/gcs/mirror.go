// Package gcs mirrors checkpoints to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to mirror into GCS.
type Config struct {
	Bucket string
	Prefix string
}

type objectWriterFunc func(ctx context.Context, object string) io.WriteCloser

// Mirror uploads checkpoint bytes to a configured bucket.
type Mirror struct {
	bucket    string
	prefix    string
	newWriter objectWriterFunc
}

// New creates a GCS-backed mirror.
func New(client *storage.Client, cfg Config) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return newMirror(cfg, func(ctx context.Context, object string) io.WriteCloser {
		w := client.Bucket(cfg.Bucket).Object(object).NewWriter(ctx)
		w.ContentType = "application/octet-stream"
		return w
	}), nil
}

func newMirror(cfg Config, newWriter objectWriterFunc) *Mirror {
	return &Mirror{
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		newWriter: newWriter,
	}
}

// Object returns the object key used for name.
func (m *Mirror) Object(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Upload writes data to the bucket under the mirror prefix.
func (m *Mirror) Upload(ctx context.Context, name string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	object := m.Object(name)
	writer := m.newWriter(ctx, object)
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("write gs://%s/%s: %w (close writer: %v)", m.bucket, object, err, closeErr)
		}
		return fmt.Errorf("write gs://%s/%s: %w", m.bucket, object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close gs://%s/%s: %w", m.bucket, object, err)
	}
	return nil
}
