package ledger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
)

func fault(id string, kind crawler.FaultKind) crawler.FaultRecord {
	return crawler.FaultRecord{
		Unit:       crawler.WorkUnit{ID: id, Origin: crawler.OriginFresh},
		Kind:       kind,
		OccurredAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestLedgerConcurrentAppend(t *testing.T) {
	t.Parallel()

	l := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				l.Append(fault(fmt.Sprintf("%d-%d", w, i), crawler.FaultTimeout))
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, 2000, l.Len())
	seen := map[string]bool{}
	for _, r := range l.Snapshot() {
		seen[r.Unit.ID] = true
	}
	require.Len(t, seen, 2000)
}

func TestLedgerSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	l := New(fault("a", crawler.FaultMalformed))
	snap := l.Snapshot()
	snap[0].Kind = crawler.FaultUnexpected
	l.Append(fault("b", crawler.FaultNotFound))

	require.Len(t, snap, 1)
	require.Equal(t, crawler.FaultMalformed, l.Snapshot()[0].Kind)
	require.Equal(t, 2, l.Len())
}

func TestLedgerKeepsDuplicates(t *testing.T) {
	t.Parallel()

	l := New()
	l.Append(fault("a", crawler.FaultTimeout))
	l.Append(fault("a", crawler.FaultTimeout))
	require.Equal(t, 2, l.Len())
}

func TestLedgerSeedIsNotAliased(t *testing.T) {
	t.Parallel()

	seed := []crawler.FaultRecord{fault("a", crawler.FaultTimeout)}
	l := New(seed...)
	seed[0].Unit.ID = "mutated"
	require.Equal(t, "a", l.Snapshot()[0].Unit.ID)
	require.Empty(t, New().Snapshot())
}
