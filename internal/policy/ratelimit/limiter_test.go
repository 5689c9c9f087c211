package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitSpacesRequestsPerHost(t *testing.T) {
	t.Parallel()
	l := New(Config{RequestsPerSecond: 20, Burst: 1})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://courts.example/verdicts?date=2024-01-01"))
	require.NoError(t, l.Wait(ctx, "https://courts.example/verdicts?date=2024-01-02"))
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	// Another host has its own bucket.
	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://mirror.example/verdicts"))
	require.Less(t, time.Since(start), 40*time.Millisecond)
}

func TestWaitUnlimitedByDefault(t *testing.T) {
	t.Parallel()
	l := New(Config{})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://courts.example/"))
	}
}

func TestWaitFailsWhenDeadlineTooShort(t *testing.T) {
	t.Parallel()
	l := New(Config{RequestsPerSecond: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://courts.example/"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://courts.example/"))
}

func TestWaitHonorsCancelledContext(t *testing.T) {
	t.Parallel()
	l := New(Config{RequestsPerSecond: 1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://courts.example/"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Wait(ctx, "https://courts.example/"), context.Canceled)
}
