package journal

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries an InmemJournal keeps.
const DefaultCapacity = 1000

// InmemJournal keeps the last entries in a ring buffer.
type InmemJournal struct {
	sync.RWMutex
	entries  []Entry
	capacity int
	last     uint64
}

// NewInmemJournal creates a journal holding at most capacity entries.
func NewInmemJournal(capacity int) *InmemJournal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &InmemJournal{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// Record implements the Journal interface. The oldest entry is dropped once
// the journal is full.
func (j *InmemJournal) Record(e Entry) (uint64, error) {
	j.Lock()
	defer j.Unlock()

	j.last++
	e.Seq = j.last
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	if len(j.entries) == j.capacity {
		copy(j.entries, j.entries[1:])
		j.entries = j.entries[:len(j.entries)-1]
	}
	j.entries = append(j.entries, e)

	return e.Seq, nil
}

// Entries implements the Journal interface.
func (j *InmemJournal) Entries(from uint64, limit int) ([]Entry, error) {
	j.RLock()
	defer j.RUnlock()

	res := []Entry{}
	for _, e := range j.entries {
		if e.Seq < from {
			continue
		}
		if limit > 0 && len(res) == limit {
			break
		}
		res = append(res, e)
	}
	return res, nil
}

// Last implements the Journal interface.
func (j *InmemJournal) Last() uint64 {
	j.RLock()
	defer j.RUnlock()
	return j.last
}

// Close implements the Journal interface.
func (j *InmemJournal) Close() error {
	return nil
}
