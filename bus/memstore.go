package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/petal-labs/vendwatch/event"
)

// MemEventStore is a thread-safe in-memory journal. Records of each run are
// kept ordered by Seq regardless of append order.
type MemEventStore struct {
	mu   sync.RWMutex
	runs map[string][]Record // runID -> records sorted by Seq
	ids  map[uuid.UUID]struct{}
}

// NewMemEventStore creates an empty in-memory journal.
func NewMemEventStore() *MemEventStore {
	return &MemEventStore{
		runs: make(map[string][]Record),
		ids:  make(map[uuid.UUID]struct{}),
	}
}

func (s *MemEventStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[rec.ID]; dup {
		return fmt.Errorf("memstore: append %s: %w", rec.ID, ErrDuplicateRecord)
	}
	s.ids[rec.ID] = struct{}{}

	recs := s.runs[rec.RunID]
	i := sort.Search(len(recs), func(i int) bool { return recs[i].Seq > rec.Seq })
	recs = append(recs, Record{})
	copy(recs[i+1:], recs[i:])
	recs[i] = rec
	s.runs[rec.RunID] = recs
	return nil
}

func (s *MemEventStore) List(_ context.Context, runID string, afterSeq uint64, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.runs[runID]
	start := sort.Search(len(recs), func(i int) bool { return recs[i].Seq > afterSeq })
	tail := recs[start:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	if len(tail) == 0 {
		return nil, nil
	}
	out := make([]Record, len(tail))
	copy(out, tail)
	return out, nil
}

func (s *MemEventStore) LatestSeq(_ context.Context, runID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.runs[runID]
	if len(recs) == 0 {
		return 0, nil
	}
	return recs[len(recs)-1].Seq, nil
}

func (s *MemEventStore) RunIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemEventStore) KindCounts(_ context.Context, runID string) (map[event.Kind]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[event.Kind]int)
	for _, r := range s.runs[runID] {
		counts[r.Kind]++
	}
	return counts, nil
}

func (s *MemEventStore) ListMachine(_ context.Context, runID, machineID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, r := range s.runs[runID] {
		if r.MachineID != machineID {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

var (
	_ EventStore    = (*MemEventStore)(nil)
	_ JournalReader = (*MemEventStore)(nil)
)
