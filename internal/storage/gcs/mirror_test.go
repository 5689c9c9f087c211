package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	bytes.Buffer
	closed   bool
	writeErr error
	closeErr error
}

func (o *fakeObject) Write(p []byte) (int, error) {
	if o.writeErr != nil {
		return 0, o.writeErr
	}
	return o.Buffer.Write(p)
}

func (o *fakeObject) Close() error {
	o.closed = true
	return o.closeErr
}

func TestUploadWritesUnderPrefix(t *testing.T) {
	t.Parallel()

	objects := map[string]*fakeObject{}
	m := newMirror(Config{Bucket: "verdicts", Prefix: "/checkpoints/"}, func(_ context.Context, object string) io.WriteCloser {
		o := &fakeObject{}
		objects[object] = o
		return o
	})

	require.NoError(t, m.Upload(context.Background(), "faults-1.ckpt", []byte("payload")))
	obj, ok := objects["checkpoints/faults-1.ckpt"]
	require.True(t, ok)
	require.True(t, obj.closed)
	require.Equal(t, "payload", obj.String())
}

func TestUploadSurfacesWriterErrors(t *testing.T) {
	t.Parallel()

	writeFail := newMirror(Config{Bucket: "b"}, func(context.Context, string) io.WriteCloser {
		return &fakeObject{writeErr: errors.New("quota")}
	})
	err := writeFail.Upload(context.Background(), "x.ckpt", []byte("p"))
	require.ErrorContains(t, err, "gs://b/x.ckpt")

	closeFail := newMirror(Config{Bucket: "b"}, func(context.Context, string) io.WriteCloser {
		return &fakeObject{closeErr: errors.New("precondition failed")}
	})
	err = closeFail.Upload(context.Background(), "x.ckpt", []byte("p"))
	require.ErrorContains(t, err, "precondition failed")

	require.Error(t, writeFail.Upload(context.Background(), " ", nil))
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
}
