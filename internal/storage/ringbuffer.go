// Package storage keeps locally captured spans and log entries in bounded
// in-memory buffers and answers Mirador queries over them.
package storage

import "sync"

// RingBuffer is a thread-safe ring buffer holding a fixed number of items.
// When full, adding an item overwrites the oldest one.
type RingBuffer[T any] struct {
	sync.RWMutex
	items    []T
	capacity int
	head     int    // next write position
	size     int    // current number of items
	total    uint64 // items ever added
}

// NewRingBuffer creates a ring buffer. The capacity must be greater than zero.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic("ring buffer capacity must be greater than zero")
	}
	return &RingBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add inserts an item. When the buffer is at capacity the overwritten item
// is returned with ok set.
func (rb *RingBuffer[T]) Add(item T) (evicted T, ok bool) {
	rb.Lock()
	defer rb.Unlock()

	if rb.size == rb.capacity {
		evicted, ok = rb.items[rb.head], true
	}
	rb.items[rb.head] = item
	rb.head = (rb.head + 1) % rb.capacity
	rb.total++
	if rb.size < rb.capacity {
		rb.size++
	}
	return evicted, ok
}

// GetAll returns all items oldest first. The slice is a copy.
func (rb *RingBuffer[T]) GetAll() []T {
	rb.RLock()
	defer rb.RUnlock()
	return rb.snapshot()
}

func (rb *RingBuffer[T]) snapshot() []T {
	if rb.size == 0 {
		return nil
	}
	result := make([]T, rb.size)
	if rb.size < rb.capacity {
		copy(result, rb.items[:rb.size])
	} else {
		// head points at the oldest item once wrapped
		n := copy(result, rb.items[rb.head:])
		copy(result[n:], rb.items[:rb.head])
	}
	return result
}

// GetRecent returns the n most recent items, oldest first.
func (rb *RingBuffer[T]) GetRecent(n int) []T {
	all := rb.GetAll()
	if len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}

// Filter returns the items keep accepts, oldest first.
func (rb *RingBuffer[T]) Filter(keep func(T) bool) []T {
	var out []T
	for _, item := range rb.GetAll() {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Size returns the current number of items.
func (rb *RingBuffer[T]) Size() int {
	rb.RLock()
	defer rb.RUnlock()
	return rb.size
}

// Capacity returns the maximum number of items.
func (rb *RingBuffer[T]) Capacity() int {
	return rb.capacity
}

// Total returns the number of items ever added, including evicted ones.
func (rb *RingBuffer[T]) Total() uint64 {
	rb.RLock()
	defer rb.RUnlock()
	return rb.total
}

// Clear removes all items. Total is kept.
func (rb *RingBuffer[T]) Clear() {
	rb.Lock()
	defer rb.Unlock()
	var zero T
	for i := range rb.items {
		rb.items[i] = zero
	}
	rb.size = 0
	rb.head = 0
}
