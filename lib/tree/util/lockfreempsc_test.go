package util

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

// TestBasicOperations tests basic push and drain functionality
func TestBasicOperations(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	// Push 10 items
	for i := 0; i < 10; i++ {
		if !q.Push(&i) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	if q.Len() != 10 {
		t.Errorf("Expected length 10, got %d", q.Len())
	}

	// Drain 10 items in order
	expected := 0
	n := q.Drain(func(val *int) {
		if *val != expected {
			t.Errorf("Expected %d, got %d", expected, *val)
		}
		expected++
	})
	if n != 10 {
		t.Errorf("Expected to drain 10 items, drained %d", n)
	}

	// Make sure queue is empty
	if n := q.Drain(func(val *int) { t.Errorf("Queue should be empty, but got %v", *val) }); n != 0 {
		t.Errorf("Expected to drain 0 items, drained %d", n)
	}
	if q.Len() != 0 {
		t.Errorf("Expected length 0, got %d", q.Len())
	}
}

// TestPushNil verifies that nil values are rejected
func TestPushNil(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	if q.Push(nil) {
		t.Error("Push(nil) should return false")
	}
	if q.Len() != 0 {
		t.Errorf("Expected length 0, got %d", q.Len())
	}
}

// TestWakeSignal verifies that a push wakes a waiting consumer
func TestWakeSignal(t *testing.T) {
	q := NewLockFreeMPSC[string]()
	defer q.Close()

	// no push yet, wake must not fire
	select {
	case <-q.Wake():
		t.Error("Wake fired without a push")
	default:
	}

	val := "test"
	q.Push(&val)

	select {
	case <-q.Wake():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for wake signal")
	}

	var got []string
	q.Drain(func(s *string) { got = append(got, *s) })
	if len(got) != 1 || got[0] != "test" {
		t.Errorf("Expected [test], got %v", got)
	}
}

// TestConcurrentProducers verifies the queue works correctly with multiple producers
func TestConcurrentProducers(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	const numProducers = 10
	const itemsPerProducer = 1000
	totalItems := numProducers * itemsPerProducer

	received := make(map[int]bool, totalItems)
	stop := make(chan struct{})
	done := make(chan struct{})

	// single consumer
	go func() {
		defer close(done)
		consume := func(val *int) {
			if received[*val] {
				t.Errorf("Duplicate item received: %d", *val)
			}
			received[*val] = true
		}
		for {
			select {
			case <-q.Wake():
				q.Drain(consume)
			case <-stop:
				q.Drain(consume)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func(producerID int) {
			defer wg.Done()

			base := producerID * itemsPerProducer
			for i := 0; i < itemsPerProducer; i++ {
				val := base + i
				if !q.Push(&val) {
					t.Errorf("Producer %d failed to push item %d", producerID, i)
				}
				if i%100 == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}

	wg.Wait()
	close(stop)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Timeout waiting for consumer to finish")
	}

	if len(received) != totalItems {
		t.Errorf("Expected %d items, got %d", totalItems, len(received))
	}
}

// TestCloseQueue verifies closing behavior
func TestCloseQueue(t *testing.T) {
	q := NewLockFreeMPSC[int]()

	for i := 0; i < 5; i++ {
		q.Push(&i)
	}

	q.Close()

	// Verify we can't push after closing
	val := 100
	if q.Push(&val) {
		t.Error("Should not be able to push after queue is closed")
	}

	// Verify we can still drain existing items
	expected := 0
	q.Drain(func(val *int) {
		if *val != expected {
			t.Errorf("Expected %d, got %d", expected, *val)
		}
		expected++
	})
	if expected != 5 {
		t.Errorf("Expected 5 items after close, got %d", expected)
	}
}

// TestOrderingSingleProducer tests that items of one producer are drained in push order
func TestOrderingSingleProducer(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	const itemCount = 10000
	go func() {
		for i := 0; i < itemCount; i++ {
			q.Push(&i)
		}
	}()

	prev := -1
	count := 0
	deadline := time.After(2 * time.Second)
	for count < itemCount {
		select {
		case <-q.Wake():
		case <-deadline:
			t.Fatalf("Timeout, received %d of %d items", count, itemCount)
		}
		q.Drain(func(val *int) {
			if *val <= prev {
				t.Errorf("Item %d drained after %d", *val, prev)
			}
			prev = *val
			count++
		})
	}
}

// BenchmarkSingleProducer benchmarks the queue with a single producer
func BenchmarkSingleProducer(b *testing.B) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Push(&i)
		if i%1024 == 0 {
			q.Drain(func(*int) {})
		}
	}
}

// BenchmarkMultiProducer benchmarks the queue with multiple producers
func BenchmarkMultiProducer(b *testing.B) {
	q := NewLockFreeMPSC[int]()
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-q.Wake():
				q.Drain(func(*int) {})
			case <-stop:
				return
			}
		}
	}()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			q.Push(&i)
			i++
		}
	})
	b.StopTimer()

	close(stop)
	<-done
	q.Close()
}
