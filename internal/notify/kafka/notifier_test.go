package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
	"github.com/JakeFAU/verdict-crawler/internal/notify"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNotifyFaultsWritesOneMessagePerFault(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	n := NewWithWriter(w)
	faults := []crawler.FaultRecord{
		{Unit: crawler.WorkUnit{ID: "2024-01-01", Origin: crawler.OriginFresh}, Kind: crawler.FaultTimeout, OccurredAt: time.Unix(10, 0)},
		{Unit: crawler.WorkUnit{ID: "2024-01-02", Origin: crawler.OriginFresh}, Kind: crawler.FaultMalformed, OccurredAt: time.Unix(20, 0)},
	}

	require.NoError(t, n.NotifyFaults(context.Background(), "run-1", faults))
	require.Len(t, w.msgs, 2)
	require.Equal(t, []byte("2024-01-02"), w.msgs[1].Key)

	var ev notify.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	require.Equal(t, "run-1", ev.RunID)
	require.Equal(t, "timeout", ev.Kind)
	require.Contains(t, w.msgs[0].Headers, kafka.Header{Key: "kind", Value: []byte("timeout")})

	require.NoError(t, n.Close())
	require.True(t, w.closed)
}

func TestNotifyFaultsSkipsEmptyLedger(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{err: errors.New("must not be called")}
	require.NoError(t, NewWithWriter(w).NotifyFaults(context.Background(), "run", nil))
}

func TestNotifyFaultsWrapsWriterErrors(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{err: errors.New("leader not available")}
	err := NewWithWriter(w).NotifyFaults(context.Background(), "run", []crawler.FaultRecord{{Unit: crawler.WorkUnit{ID: "x"}}})
	require.ErrorContains(t, err, "leader not available")
}

func TestNewValidatesInput(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "faults")
	require.Error(t, err)
	_, err = New([]string{"localhost:9092"}, "")
	require.Error(t, err)
	n, err := New([]string{"localhost:9092"}, "faults")
	require.NoError(t, err)
	require.NoError(t, n.Close())
}
