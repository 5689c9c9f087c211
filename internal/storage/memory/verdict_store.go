// Package memory keeps verdicts in process memory for dry runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
)

// VerdictStore implements crawler.VerdictStore with upsert-by-reference
// semantics matching the Postgres store.
type VerdictStore struct {
	mu       sync.RWMutex
	verdicts map[string]crawler.Verdict
	units    map[string]int
}

var _ crawler.VerdictStore = (*VerdictStore)(nil)

// NewVerdictStore constructs an empty VerdictStore.
func NewVerdictStore() *VerdictStore {
	return &VerdictStore{
		verdicts: make(map[string]crawler.Verdict),
		units:    make(map[string]int),
	}
}

// StoreRecord upserts every verdict of record. Previously captured full text
// is kept unless opts.FullText is set.
func (s *VerdictStore) StoreRecord(ctx context.Context, record crawler.Record, opts crawler.StoreOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range record.Verdicts {
		prev, exists := s.verdicts[v.Reference]
		if !opts.FullText {
			v.FullText, v.ContentHash = "", ""
			if exists {
				v.FullText, v.ContentHash = prev.FullText, prev.ContentHash
			}
		}
		s.verdicts[v.Reference] = v
	}
	s.units[record.UnitID]++
	return nil
}

// Get returns the verdict stored under reference.
func (s *VerdictStore) Get(reference string) (crawler.Verdict, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verdicts[reference]
	return v, ok
}

// Len returns the number of distinct verdicts stored.
func (s *VerdictStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.verdicts)
}

// Units returns the IDs of units stored at least once, sorted.
func (s *VerdictStore) Units() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.units))
	for id := range s.units {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
