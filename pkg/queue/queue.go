// Package queue implements the per-address pending-downlink queues that
// sit between broker on_dldata callbacks and the network event loop's TX
// step.
package queue

import "sync"

// Pending maps a network address (lowercase hex) to an unbounded FIFO of
// queued items. A queue is created lazily on first PushBack for that
// address and is never removed, even once drained.
type Pending[T any] struct {
	mu    sync.Mutex
	addrs map[string][]T
}

// New creates an empty Pending queue set.
func New[T any]() *Pending[T] {
	return &Pending[T]{addrs: make(map[string][]T)}
}

// PushBack appends item to addr's queue, creating it if necessary.
func (p *Pending[T]) PushBack(addr string, item T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addrs[addr] = append(p.addrs[addr], item)
}

// PopFront removes and returns the head of addr's queue. ok is false if
// the address has no queue or the queue is empty; callers should treat
// that as "nothing to transmit this tick", not an error.
func (p *Pending[T]) PopFront(addr string) (item T, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, found := p.addrs[addr]
	if !found || len(q) == 0 {
		return item, false
	}
	item = q[0]
	p.addrs[addr] = q[1:]
	return item, true
}

// Len reports how many items are currently queued for addr.
func (p *Pending[T]) Len(addr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.addrs[addr])
}

// Snapshot returns a copy of addr's queue, for the HTTP queue/{addr}
// endpoint.
func (p *Pending[T]) Snapshot(addr string) []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.addrs[addr]
	out := make([]T, len(q))
	copy(out, q)
	return out
}
