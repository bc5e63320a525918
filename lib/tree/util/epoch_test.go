package util

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type epochObj struct {
	val atomic.Int64
}

// waitFor polls cond until it holds or the timeout expires
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

// TestEpochRecycleWithoutReaders tests that retired nodes are recycled eventually
func TestEpochRecycleWithoutReaders(t *testing.T) {
	var recycled atomic.Int64
	tracker := NewEpochTracker[epochObj](func(*epochObj) { recycled.Add(1) }, time.Millisecond)
	defer tracker.Close()

	tracker.Retire(&epochObj{}, &epochObj{}, &epochObj{})

	if !waitFor(t, 2*time.Second, func() bool { return recycled.Load() == 3 }) {
		t.Fatalf("Expected 3 recycled nodes, got %d", recycled.Load())
	}
	if tracker.Pending() != 0 {
		t.Errorf("Expected 0 pending nodes, got %d", tracker.Pending())
	}
}

// TestEpochReaderBlocksRecycling tests that an active reader delays recycling
func TestEpochReaderBlocksRecycling(t *testing.T) {
	var recycled atomic.Int64
	tracker := NewEpochTracker[epochObj](func(*epochObj) { recycled.Add(1) }, time.Millisecond)
	defer tracker.Close()

	tok := tracker.Enter()
	tracker.Retire(&epochObj{})

	// give the reclaimer plenty of ticks
	time.Sleep(50 * time.Millisecond)
	if recycled.Load() != 0 {
		t.Fatal("Node was recycled while a reader was still active")
	}
	if tracker.ActiveReaders() != 1 {
		t.Errorf("Expected 1 active reader, got %d", tracker.ActiveReaders())
	}

	tracker.Exit(tok)

	if !waitFor(t, 2*time.Second, func() bool { return recycled.Load() == 1 }) {
		t.Fatal("Node was not recycled after the reader left")
	}
}

// TestEpochLateReaderDoesNotBlock tests that readers entering after a retire
// do not hold back the batch forever
func TestEpochLateReaderDoesNotBlock(t *testing.T) {
	var recycled atomic.Int64
	tracker := NewEpochTracker[epochObj](func(*epochObj) { recycled.Add(1) }, time.Millisecond)
	defer tracker.Close()

	tracker.Retire(&epochObj{})
	tracker.Synchronize()

	if recycled.Load() != 1 {
		t.Fatalf("Expected the node to be recycled after Synchronize, got %d", recycled.Load())
	}

	// a reader that is active now only holds back later batches
	tok := tracker.Enter()
	defer tracker.Exit(tok)

	if tracker.Epoch() < 2 {
		t.Errorf("Expected the epoch to have advanced, got %d", tracker.Epoch())
	}
}

// TestEpochSynchronizeWaitsForReader tests that Synchronize blocks while a reader is active
func TestEpochSynchronizeWaitsForReader(t *testing.T) {
	tracker := NewEpochTracker[epochObj](func(*epochObj) {}, time.Millisecond)
	defer tracker.Close()

	tok := tracker.Enter()

	done := make(chan struct{})
	go func() {
		tracker.Synchronize()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Synchronize returned while a reader was active")
	case <-time.After(30 * time.Millisecond):
	}

	tracker.Exit(tok)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Synchronize did not return after the reader left")
	}
}

// TestEpochCloseDrains tests that Close recycles everything still pending
func TestEpochCloseDrains(t *testing.T) {
	var recycled atomic.Int64
	tracker := NewEpochTracker[epochObj](func(*epochObj) { recycled.Add(1) }, time.Hour)

	for i := 0; i < 10; i++ {
		tracker.Retire(&epochObj{})
	}
	tracker.Close()

	if recycled.Load() != 10 {
		t.Errorf("Expected 10 recycled nodes after Close, got %d", recycled.Load())
	}

	// Close is idempotent and Synchronize after Close returns immediately
	tracker.Close()
	tracker.Synchronize()
}

// TestEpochUnbalancedExit tests that an Exit without Enter panics
func TestEpochUnbalancedExit(t *testing.T) {
	tracker := NewEpochTracker[epochObj](func(*epochObj) {}, time.Millisecond)
	defer tracker.Close()

	defer func() {
		if recover() == nil {
			t.Error("Expected panic for unbalanced Exit")
		}
	}()
	tracker.Exit(Token(tracker.Epoch()))
}

// TestEpochConcurrentReaders publishes objects while readers dereference them.
// Recycled objects are poisoned, a reader must never see a poisoned object.
func TestEpochConcurrentReaders(t *testing.T) {
	const poisoned = -1
	const readers = 8
	const updates = 5000

	tracker := NewEpochTracker[epochObj](func(o *epochObj) { o.val.Store(poisoned) }, time.Millisecond)
	defer tracker.Close()

	var current atomic.Pointer[epochObj]
	first := &epochObj{}
	first.val.Store(0)
	current.Store(first)

	var stop atomic.Bool
	var violations atomic.Int64
	var wg sync.WaitGroup

	wg.Add(readers)
	for r := 0; r < readers; r++ {
		go func() {
			defer wg.Done()
			for !stop.Load() {
				tok := tracker.Enter()
				obj := current.Load()
				for i := 0; i < 10; i++ {
					if obj.val.Load() == poisoned {
						violations.Add(1)
					}
				}
				tracker.Exit(tok)
			}
		}()
	}

	// single writer
	for i := 1; i <= updates; i++ {
		next := &epochObj{}
		next.val.Store(int64(i))
		old := current.Swap(next)
		tracker.Retire(old)
	}

	stop.Store(true)
	wg.Wait()

	if v := violations.Load(); v != 0 {
		t.Fatalf("Readers observed %d recycled objects", v)
	}

	tracker.Synchronize()
	if tracker.Pending() != 0 {
		t.Errorf("Expected 0 pending nodes after Synchronize, got %d", tracker.Pending())
	}
}

// BenchmarkEpochEnterExit benchmarks the read side
func BenchmarkEpochEnterExit(b *testing.B) {
	tracker := NewEpochTracker[epochObj](func(*epochObj) {}, time.Millisecond)
	defer tracker.Close()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tracker.Exit(tracker.Enter())
		}
	})
}
