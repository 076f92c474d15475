package records

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotOrderedByIndex(t *testing.T) {
	s := NewMemStore()
	s.Add(Record{Index: 2, JobID: "c"})
	s.Add(Record{Index: 0, JobID: "a"})
	s.Add(Record{Index: 1, JobID: "b"})

	snap := s.Snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, []string{snap[0].JobID, snap[1].JobID, snap[2].JobID})

	// the snapshot is a copy
	snap[0].JobID = "changed"
	assert.Equal(t, "a", s.Snapshot()[0].JobID)
}

func TestAddReplacesSameIndex(t *testing.T) {
	s := NewMemStore()
	s.Add(Record{Index: 0, JobID: "old"})
	s.Add(Record{Index: 0, JobID: "new"})
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "new", s.Snapshot()[0].JobID)
}

func TestConcurrentAdd(t *testing.T) {
	s := NewMemStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(Record{Index: i})
			_ = s.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
	assert.Empty(t, NewMemStore().Snapshot())
}
