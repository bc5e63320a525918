// Package util
//
// This file provides a fixed-capacity node allocator for tree implementations.
//
// The pool never blocks and never performs I/O. Allocation may happen while a
// write lock is held, so on exhaustion the pool reports tree.ErrAllocationFailure
// instead of waiting for nodes to be recycled.
//
// Multi-node structural updates (rotations, copy-on-write paths) use
// reservations: the caller reserves the worst case number of nodes before
// touching the tree. Either the reservation succeeds and every allocation of
// the update is guaranteed to succeed, or the update fails up front and the
// tree stays unchanged.
//
// Example usage:
//
//	pool := NewNodePool[node](1 << 20)
//
//	res, err := pool.Reserve(3 * depth)
//	if err != nil {
//	    return err // tree.ErrAllocationFailure
//	}
//	defer res.Release()
//
//	n := res.Allocate()
package util

import (
	"sync/atomic"

	"github.com/ValentinKolb/ltree/lib/tree"
	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// maxFreeList bounds the number of idle nodes kept for reuse.
	// Idle nodes beyond this are left to the go gc.
	maxFreeList = 1 << 16
)

// PoolOption configures a NodePool
type PoolOption[T any] func(*NodePool[T])

// WithPoison sets a function that is applied to every recycled node.
// Tests use it to detect readers dereferencing recycled nodes.
func WithPoison[T any](poison func(*T)) PoolOption[T] {
	return func(p *NodePool[T]) {
		p.poison = poison
	}
}

// NodePool is a fixed-capacity allocator for nodes of type T.
//
// Thread-safety: All methods are thread-safe.
type NodePool[T any] struct {
	capacity int
	free     chan *T

	inUse    atomic.Int64 // nodes handed out and not yet recycled
	reserved atomic.Int64 // capacity promised to open reservations

	allocated *xsync.Counter
	recycled  *xsync.Counter

	poison func(*T)
}

// NewNodePool creates a pool that hands out at most capacity live nodes.
func NewNodePool[T any](capacity int, opts ...PoolOption[T]) *NodePool[T] {
	if capacity <= 0 {
		panic(errors.AssertionFailedf("node pool capacity must be positive, got %d", capacity))
	}
	p := &NodePool[T]{
		capacity:  capacity,
		free:      make(chan *T, min(capacity, maxFreeList)),
		allocated: xsync.NewCounter(),
		recycled:  xsync.NewCounter(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Allocate returns a node or tree.ErrAllocationFailure if the pool is exhausted.
func (p *NodePool[T]) Allocate() (*T, error) {
	for {
		used := p.inUse.Load()
		if used+p.reserved.Load() >= int64(p.capacity) {
			return nil, tree.ErrAllocationFailure
		}
		if p.inUse.CompareAndSwap(used, used+1) {
			return p.take(), nil
		}
	}
}

// take returns an idle node or a fresh one. The caller has already accounted for it.
func (p *NodePool[T]) take() *T {
	p.allocated.Inc()
	select {
	case n := <-p.free:
		return n
	default:
		return new(T)
	}
}

// Recycle returns a node to the pool. The caller guarantees that no reader can
// still observe the node.
func (p *NodePool[T]) Recycle(n *T) {
	if n == nil {
		return
	}
	if p.poison != nil {
		p.poison(n)
	}
	p.recycled.Inc()
	if p.inUse.Add(-1) < 0 {
		panic(errors.AssertionFailedf("node pool recycled more nodes than it handed out"))
	}
	select {
	case p.free <- n:
	default:
	}
}

// Reserve promises n nodes to the caller. The returned reservation must be
// released once the structural update is finished.
func (p *NodePool[T]) Reserve(n int) (Reservation[T], error) {
	for {
		r := p.reserved.Load()
		if p.inUse.Load()+r+int64(n) > int64(p.capacity) {
			return Reservation[T]{}, errors.Wrapf(tree.ErrAllocationFailure, "reserving %d nodes", n)
		}
		if p.reserved.CompareAndSwap(r, r+int64(n)) {
			return Reservation[T]{pool: p, remaining: n}, nil
		}
	}
}

// Capacity returns the maximum number of live nodes
func (p *NodePool[T]) Capacity() int {
	return p.capacity
}

// InUse returns the number of nodes handed out and not yet recycled
func (p *NodePool[T]) InUse() int64 {
	return p.inUse.Load()
}

// Info returns a snapshot of the pool counters.
// Allocated and Recycled are exact only while the pool is quiescent.
func (p *NodePool[T]) Info() tree.PoolInfo {
	return tree.PoolInfo{
		Capacity:  p.capacity,
		InUse:     p.inUse.Load(),
		Reserved:  p.reserved.Load(),
		Allocated: p.allocated.Value(),
		Recycled:  p.recycled.Value(),
	}
}

// --------------------------------------------------------------------------
// Reservation
// --------------------------------------------------------------------------

// Reservation is a number of nodes promised by a NodePool.
//
// Thread-safety: A reservation belongs to one goroutine and is not thread-safe.
type Reservation[T any] struct {
	pool      *NodePool[T]
	remaining int
}

// Allocate takes one node out of the reservation. Allocating more nodes than
// were reserved is a logic error.
func (r *Reservation[T]) Allocate() *T {
	if r.remaining <= 0 {
		panic(errors.AssertionFailedf("reservation exhausted"))
	}
	r.remaining--
	// count the node as used before giving up the reservation so the
	// pool never looks emptier than it is
	r.pool.inUse.Add(1)
	r.pool.reserved.Add(-1)
	return r.pool.take()
}

// Remaining returns the number of nodes left in the reservation
func (r *Reservation[T]) Remaining() int {
	return r.remaining
}

// Release gives the unused part of the reservation back to the pool.
func (r *Reservation[T]) Release() {
	if r.pool == nil || r.remaining == 0 {
		return
	}
	r.pool.reserved.Add(-int64(r.remaining))
	r.remaining = 0
}
