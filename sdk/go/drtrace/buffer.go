package drtrace

import (
	"sync"
	"sync/atomic"
)

// buffer is a mutex-protected FIFO of pending records with drop-oldest
// overflow. Drain swaps the contents out under the lock so the flusher never
// holds the lock during network I/O.
type buffer struct {
	mu      sync.Mutex
	records []Record
	max     int // 0 means unbounded
	dropped atomic.Uint64
}

func newBuffer(max int) *buffer {
	return &buffer{max: max}
}

// Add enqueues one record and returns the resulting length. At capacity the
// oldest record is evicted to make room; eviction is silent.
func (b *buffer) Add(r Record) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && len(b.records) >= b.max {
		// Shift down in place so the backing array stays bounded.
		copy(b.records, b.records[1:])
		b.records = b.records[:len(b.records)-1]
		b.dropped.Add(1)
	}
	b.records = append(b.records, r)
	return len(b.records)
}

// Drain atomically takes all pending records. Enqueues racing with the
// drain accumulate into a fresh slice.
func (b *buffer) Drain() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.records
	b.records = nil
	return out
}

func (b *buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Dropped reports how many records eviction has discarded since construction.
func (b *buffer) Dropped() uint64 {
	return b.dropped.Load()
}
