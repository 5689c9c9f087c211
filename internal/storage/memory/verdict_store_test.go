package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
)

func TestStoreRecordUpsertsByReference(t *testing.T) {
	t.Parallel()

	s := NewVerdictStore()
	ctx := context.Background()

	first := crawler.Record{UnitID: "2024-01-01", Verdicts: []crawler.Verdict{
		{Reference: "A", Title: "old", FullText: "body", ContentHash: "h1"},
	}}
	require.NoError(t, s.StoreRecord(ctx, first, crawler.StoreOptions{FullText: true}))

	second := crawler.Record{UnitID: "2024-01-02", Verdicts: []crawler.Verdict{
		{Reference: "A", Title: "new"},
		{Reference: "B", FullText: "ignored"},
	}}
	require.NoError(t, s.StoreRecord(ctx, second, crawler.StoreOptions{}))

	a, ok := s.Get("A")
	require.True(t, ok)
	require.Equal(t, "new", a.Title)
	require.Equal(t, "body", a.FullText)
	require.Equal(t, "h1", a.ContentHash)

	b, ok := s.Get("B")
	require.True(t, ok)
	require.Empty(t, b.FullText)

	require.Equal(t, 2, s.Len())
	require.Equal(t, []string{"2024-01-01", "2024-01-02"}, s.Units())
}

func TestStoreRecordHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewVerdictStore()
	err := s.StoreRecord(ctx, crawler.Record{UnitID: "x", Verdicts: []crawler.Verdict{{Reference: "A"}}}, crawler.StoreOptions{})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, s.Len())
}

func TestStoreRecordConcurrentWriters(t *testing.T) {
	t.Parallel()

	s := NewVerdictStore()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := crawler.Record{
				UnitID:   fmt.Sprintf("unit-%02d", i),
				Verdicts: []crawler.Verdict{{Reference: fmt.Sprintf("R-%02d", i)}},
			}
			errs <- s.StoreRecord(context.Background(), rec, crawler.StoreOptions{})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 20, s.Len())
	require.Len(t, s.Units(), 20)
}
