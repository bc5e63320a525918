// Package util provides a lock-free Multi-Producer Single-Consumer (MPSC) queue implementation.
//
// Features and Guarantees:
//
//   - Lock-Free: producers only use atomic operations, a writer holding a tree
//     lock never parks on the queue
//   - Unbounded Size: the queue can grow to any size as needed, limited only by available memory
//   - Thread-Safe writes: Allows any number of goroutines to safely Push() concurrently
//   - Single Consumer: Designed for one goroutine that waits on Wake() and calls Drain()
//   - FIFO per producer: items pushed by one goroutine are drained in push order.
//     Across producers the order is the order in which the appends were linearized.
package util

import (
	"runtime"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T interface{}] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue
// Implementation uses a linked list of nodes with atomic operations
// for concurrent push operations without locks
type LockFreeMPSC[T interface{}] struct {
	head   *node[T] // only touched by the consumer
	tail   atomic.Pointer[node[T]]
	wake   chan struct{}
	closed atomic.Bool
	length atomic.Int64
}

// NewLockFreeMPSC creates a new lock-free multi-producer single-consumer queue
func NewLockFreeMPSC[T interface{}]() *LockFreeMPSC[T] {
	// Create a sentinel node (dummy node at the beginning)
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		head: sentinel,
		wake: make(chan struct{}, 1),
	}
	q.tail.Store(sentinel)

	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value *T) bool {

	if value == nil || q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	q.length.Add(1)
	var backoff uint8 = 0

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// CAS may fail if another producer already helped, tail is still updated eventually
				q.tail.CompareAndSwap(tailNode, newNode)
				q.notify()
				return true
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// exponential backoff under contention
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// notify wakes the consumer without ever blocking the producer
func (q *LockFreeMPSC[T]) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Wake returns a channel that receives a value whenever items were pushed
// since the last receive. It can be used in select statements.
func (q *LockFreeMPSC[T]) Wake() <-chan struct{} {
	return q.wake
}

// Drain removes all items that are currently visible and calls fn for each of
// them in queue order. It returns the number of drained items.
//
// Thread-safety: Only the single consumer may call Drain.
func (q *LockFreeMPSC[T]) Drain(fn func(*T)) int {
	n := 0
	for {
		next := q.head.next.Load()
		if next == nil {
			return n
		}
		value := next.value

		// the consumed node becomes the new sentinel
		next.value = nil
		q.head = next
		q.length.Add(-1)

		fn(value)
		n++
	}
}

// Close closes the queue, preventing further writes.
// Items already in the queue can still be drained.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)
	q.notify()
}

// Len returns an approximate count of the number of items in the queue.
func (q *LockFreeMPSC[T]) Len() int {
	return int(q.length.Load())
}
