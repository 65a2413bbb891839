// Package history keeps bounded FIFOs of recent uplink and downlink
// records for observability, consumed by pkg/httpapi.
package history

import "sync"

// MaxRecords is the capacity of a single Buffer. Once full, the oldest
// record is dropped to make room for the newest.
const MaxRecords = 100

// Buffer is a bounded, mutex-guarded FIFO. Readers get a cloned snapshot
// so they never observe a torn write and never hold the lock for longer
// than a single push or copy.
type Buffer[T any] struct {
	mu      sync.Mutex
	records []T
}

// Add appends record, dropping the oldest entry if the buffer is full.
func (b *Buffer[T]) Add(record T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) >= MaxRecords {
		b.records = b.records[1:]
	}
	b.records = append(b.records, record)
}

// Snapshot returns a copy of the buffer's current contents, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.records))
	copy(out, b.records)
	return out
}

// Len reports the current number of records.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Update scans the buffer for the first record matching match and applies
// mutate to it in place. It reports whether a match was found. Used by
// the application-bridge callbacks (on_dldata_resp / on_dldata_result) to
// patch a previously recorded downlink.
func (b *Buffer[T]) Update(match func(T) bool, mutate func(*T)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.records {
		if match(b.records[i]) {
			mutate(&b.records[i])
			return true
		}
	}
	return false
}
