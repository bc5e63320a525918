// Package util
//
// This file provides the priority queue used by the reclamation tracker.
//
// Retired node batches are queued with the epoch in which they were retired as
// their priority. The reclaimer only ever needs the oldest batch, so a binary
// min-heap gives:
//
//   - O(log n) for Push and PopMin
//   - O(1) for Peek (the oldest retire epoch)
//
// Concurrency Considerations:
//   - Note: This implementation is not thread-safe
//   - It is owned by the single reclaimer goroutine of an EpochTracker
//
// Example usage:
//
//	q := NewEpochHeap[[]*node]()
//	q.Push(epoch, batch)
//
//	for {
//	    oldest, ok := q.Peek()
//	    if !ok || oldest.Priority+2 > current {
//	        break
//	    }
//	    batch := q.PopMin().Value
//	    // recycle batch
//	}
package util

import (
	"container/heap"
	"strconv"
)

// HeapItem is an entry of the EpochHeap
type HeapItem[V any] struct {
	Priority uint64 // retire epoch
	Value    V
	seq      uint64 // insertion order, keeps equal priorities FIFO
}

func (i *HeapItem[V]) String() string {
	return "{Priority: " + strconv.FormatUint(i.Priority, 10) + ", Seq: " + strconv.FormatUint(i.seq, 10) + "}"
}

// itemHeap implements heap.Interface
type itemHeap[V any] []*HeapItem[V]

func (h itemHeap[V]) Len() int { return len(h) }

func (h itemHeap[V]) Less(i, j int) bool {
	if h[i].Priority == h[j].Priority {
		return h[i].seq < h[j].seq
	}
	return h[i].Priority < h[j].Priority
}

func (h itemHeap[V]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap[V]) Push(x interface{}) {
	*h = append(*h, x.(*HeapItem[V]))
}

func (h *itemHeap[V]) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // Avoid memory leak
	*h = old[:n-1]
	return it
}

// EpochHeap is a min-heap of values ordered by epoch
type EpochHeap[V any] struct {
	items itemHeap[V]
	seq   uint64
}

// NewEpochHeap creates an empty heap
func NewEpochHeap[V any]() *EpochHeap[V] {
	return &EpochHeap[V]{
		items: make(itemHeap[V], 0),
	}
}

// Len returns the number of queued values
func (q *EpochHeap[V]) Len() int { return q.items.Len() }

// Push adds a value with the given priority
func (q *EpochHeap[V]) Push(priority uint64, value V) {
	q.seq++
	heap.Push(&q.items, &HeapItem[V]{Priority: priority, Value: value, seq: q.seq})
}

// Peek returns the item with the lowest priority without removing it
func (q *EpochHeap[V]) Peek() (*HeapItem[V], bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// PopMin removes and returns the item with the lowest priority.
// It returns nil if the heap is empty.
func (q *EpochHeap[V]) PopMin() *HeapItem[V] {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(&q.items).(*HeapItem[V])
}

// PopUntil removes all items with a priority <= limit and calls fn for each
// of them in priority order. It returns the number of removed items.
func (q *EpochHeap[V]) PopUntil(limit uint64, fn func(*HeapItem[V])) int {
	n := 0
	for {
		it, ok := q.Peek()
		if !ok || it.Priority > limit {
			return n
		}
		fn(q.PopMin())
		n++
	}
}
