// Package util
//
// This file implements epoch based reclamation (EBR) for lock-free readers.
//
// Readers announce themselves with Enter() before they load the root of a
// tree and leave with Exit() when they dropped every node reference. Writers
// hand nodes that were unlinked from the tree to Retire(). A retired node is
// only given back to the node pool once every reader that could still observe
// it has left, i.e. after a grace period.
//
// Mechanism:
//
//   - A global epoch counter and three reader slots (epoch mod 3). A reader
//     registers in the slot of the epoch it observed and validates that the
//     epoch did not move in the meantime.
//   - The epoch may only advance from e to e+1 if no reader is registered in
//     epoch e-1.
//   - Nodes retired in epoch r are recycled once the global epoch reached r+2:
//     every reader registered in r-1 or r has left by then, and readers that
//     registered later started after the node was unlinked.
//   - Retire never blocks. Retired batches are pushed through a LockFreeMPSC to
//     a single reclaimer goroutine that keeps them in an EpochHeap and recycles
//     them on every tick.
//
// The tree publishes its new root before calling Retire, so readers that
// entered after the call cannot reach the retired nodes.
package util

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var plog = logger.GetLogger("epoch")

const (
	// DefaultReclaimInterval is the default interval between reclaimer runs
	DefaultReclaimInterval = 10 * time.Millisecond

	// syncPollInterval is used while a Synchronize call is waiting
	syncPollInterval = 50 * time.Microsecond
)

// Token identifies a read-side critical section
type Token uint64

// readerSlot counts the readers registered in one epoch (mod 3)
type readerSlot struct {
	active atomic.Int64
	_      [56]byte // keep every slot on its own cache line
}

// retireEvent is either a batch of retired nodes or a synchronization request
type retireEvent[T any] struct {
	epoch uint64
	nodes []*T
	done  chan struct{}
}

type syncWaiter struct {
	epoch uint64
	done  chan struct{}
}

// EpochTracker tracks read-side critical sections and defers recycling of
// retired nodes until no reader can observe them anymore.
type EpochTracker[T any] struct {
	epoch   atomic.Uint64
	readers [3]readerSlot

	events   *LockFreeMPSC[retireEvent[T]]
	recycle  func(*T)
	interval time.Duration

	// owned by the reclaimer goroutine
	pending *EpochHeap[[]*T]
	waiters []syncWaiter

	retired   *xsync.Counter
	reclaimed *xsync.Counter

	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewEpochTracker creates a tracker and starts its reclaimer goroutine.
// recycle is called (from the reclaimer goroutine) for every node whose grace
// period elapsed. An interval <= 0 selects DefaultReclaimInterval.
func NewEpochTracker[T any](recycle func(*T), interval time.Duration) *EpochTracker[T] {
	if interval <= 0 {
		interval = DefaultReclaimInterval
	}
	t := &EpochTracker[T]{
		events:    NewLockFreeMPSC[retireEvent[T]](),
		recycle:   recycle,
		interval:  interval,
		pending:   NewEpochHeap[[]*T](),
		retired:   xsync.NewCounter(),
		reclaimed: xsync.NewCounter(),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go t.run()
	return t
}

// --------------------------------------------------------------------------
// Read side
// --------------------------------------------------------------------------

// Enter starts a read-side critical section. Every Enter must be paired with
// exactly one Exit, usually via defer.
//
// Thread-safety: This method is thread-safe and lock-free.
func (t *EpochTracker[T]) Enter() Token {
	for {
		e := t.epoch.Load()
		slot := &t.readers[e%3]
		slot.active.Add(1)
		if t.epoch.Load() == e {
			return Token(e)
		}
		// the epoch moved before we were visible, retry in the new epoch
		slot.active.Add(-1)
	}
}

// Exit ends the read-side critical section identified by tok.
//
// Thread-safety: This method is thread-safe and lock-free.
func (t *EpochTracker[T]) Exit(tok Token) {
	if t.readers[uint64(tok)%3].active.Add(-1) < 0 {
		panic(errors.AssertionFailedf("epoch tracker: unbalanced Exit for epoch %d", tok))
	}
}

// --------------------------------------------------------------------------
// Write side
// --------------------------------------------------------------------------

// Retire hands nodes that are no longer reachable from the published tree to
// the tracker. The tracker takes ownership of the slice.
//
// Thread-safety: This method is thread-safe and never blocks.
func (t *EpochTracker[T]) Retire(nodes ...*T) {
	if len(nodes) == 0 {
		return
	}
	ev := &retireEvent[T]{epoch: t.epoch.Load(), nodes: nodes}
	if !t.events.Push(ev) {
		panic(errors.AssertionFailedf("epoch tracker: retire after close"))
	}
	t.retired.Add(int64(len(nodes)))
}

// Synchronize blocks until a full grace period elapsed and every node retired
// before the call has been recycled. It must never be called from inside a
// read-side critical section.
//
// Thread-safety: This method is thread-safe.
func (t *EpochTracker[T]) Synchronize() {
	done := make(chan struct{})
	if !t.events.Push(&retireEvent[T]{epoch: t.epoch.Load(), done: done}) {
		// closed trackers have nothing left to wait for
		return
	}
	<-done
}

// Close drains all pending batches and stops the reclaimer goroutine.
// Retire must not be called after Close.
func (t *EpochTracker[T]) Close() {
	t.closeOnce.Do(func() {
		t.events.Close()
		close(t.stop)
		<-t.stopped
	})
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// Epoch returns the current global epoch
func (t *EpochTracker[T]) Epoch() uint64 {
	return t.epoch.Load()
}

// ActiveReaders returns the number of registered readers (approximate)
func (t *EpochTracker[T]) ActiveReaders() int64 {
	var n int64
	for i := range t.readers {
		n += t.readers[i].active.Load()
	}
	return n
}

// Pending returns the number of retired nodes that were not recycled yet.
// The value is exact only while no writer is active.
func (t *EpochTracker[T]) Pending() int64 {
	return t.retired.Value() - t.reclaimed.Value()
}

// Queued returns the number of retire events the reclaimer has not picked up yet (approximate)
func (t *EpochTracker[T]) Queued() int {
	return t.events.Len()
}

// --------------------------------------------------------------------------
// Reclaimer
// --------------------------------------------------------------------------

// run is the reclaimer loop.
// WARNING: this method should never be called directly, it is started by NewEpochTracker
func (t *EpochTracker[T]) run() {
	defer close(t.stopped)

	timer := time.NewTimer(t.interval)
	defer timer.Stop()

	for {
		select {
		case <-t.events.Wake():
		case <-timer.C:
		case <-t.stop:
			t.shutdown()
			return
		}

		t.events.Drain(t.accept)
		t.collect()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if len(t.waiters) > 0 {
			timer.Reset(syncPollInterval)
		} else {
			timer.Reset(t.interval)
		}
	}
}

// accept moves one event into the reclaimer's own bookkeeping
func (t *EpochTracker[T]) accept(ev *retireEvent[T]) {
	if len(ev.nodes) > 0 {
		t.pending.Push(ev.epoch, ev.nodes)
	}
	if ev.done != nil {
		t.waiters = append(t.waiters, syncWaiter{epoch: ev.epoch, done: ev.done})
	}
}

// tryAdvance moves the global epoch forward if no reader is left in the previous epoch
func (t *EpochTracker[T]) tryAdvance() bool {
	e := t.epoch.Load()
	if t.readers[(e+2)%3].active.Load() != 0 {
		return false
	}
	return t.epoch.CompareAndSwap(e, e+1)
}

// collect advances the epoch and recycles every batch whose grace period elapsed
func (t *EpochTracker[T]) collect() {
	if t.tryAdvance() {
		t.tryAdvance()
	}

	e := t.epoch.Load()
	if e < 2 {
		return
	}

	n := t.pending.PopUntil(e-2, func(it *HeapItem[[]*T]) {
		for _, node := range it.Value {
			t.recycle(node)
		}
		t.reclaimed.Add(int64(len(it.Value)))
	})
	if n > 0 {
		plog.Debugf("recycled %d batches (epoch %d, %d batches pending)", n, e, t.pending.Len())
	}

	kept := t.waiters[:0]
	for _, w := range t.waiters {
		if e >= w.epoch+2 {
			close(w.done)
		} else {
			kept = append(kept, w)
		}
	}
	t.waiters = kept
}

// shutdown drains everything that is still queued. Readers that are still
// registered delay the shutdown until they leave.
func (t *EpochTracker[T]) shutdown() {
	t.events.Drain(t.accept)
	for t.pending.Len() > 0 || len(t.waiters) > 0 {
		t.collect()
		if t.pending.Len() > 0 || len(t.waiters) > 0 {
			time.Sleep(syncPollInterval)
		}
		t.events.Drain(t.accept)
	}
}
