package records

import (
	"sort"
	"sync"
	"time"
)

// Record is one command accepted by the scheduler.
type Record struct {
	Index       int
	Command     string
	OutputDir   string
	JobID       string
	Label       string
	SubmittedAt time.Time
}

// Store is the interface used by the submission engine and the report.
type Store interface {
	Add(r Record)
	Snapshot() []Record
}

// MemStore is an in-memory implementation of Store. A second Add for the
// same index replaces the first.
type MemStore struct {
	mu   sync.RWMutex
	data map[int]Record
}

func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[int]Record),
	}
}

func (s *MemStore) Add(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[r.Index] = r
}

// Snapshot returns a copy of every record, ordered by index.
func (s *MemStore) Snapshot() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.data))
	for _, v := range s.data {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
