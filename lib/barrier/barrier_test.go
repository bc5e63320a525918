package barrier

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBarrierReleasesAll(t *testing.T) {
	const n = 8
	b := New(n)

	var before, after atomic.Int32
	var last atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			before.Add(1)
			if b.Wait() {
				last.Add(1)
			}
			// nobody may pass before everybody arrived
			if got := before.Load(); got != n {
				t.Errorf("passed the barrier with only %d arrivals", got)
			}
			after.Add(1)
		}()
	}
	wg.Wait()

	if after.Load() != n {
		t.Errorf("expected %d goroutines to pass, got %d", n, after.Load())
	}
	if last.Load() != 1 {
		t.Errorf("expected exactly one last arrival, got %d", last.Load())
	}
}

func TestBarrierBlocksUntilComplete(t *testing.T) {
	b := New(2)
	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("barrier released a single goroutine")
	case <-time.After(20 * time.Millisecond):
	}

	b.Wait()
	<-done
}

func TestBarrierReuse(t *testing.T) {
	const n, rounds = 4, 100
	b := New(n)

	var counter atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				counter.Add(1)
				b.Wait()
				// every goroutine finished the increment of this round
				if got := counter.Load(); got < int32(n*(r+1)) {
					t.Errorf("round %d: counter is %d, want >= %d", r, got, n*(r+1))
					return
				}
				b.Wait()
			}
		}()
	}
	wg.Wait()

	if got := counter.Load(); got != n*rounds {
		t.Errorf("expected counter %d, got %d", n*rounds, got)
	}
}

func TestSingleParty(t *testing.T) {
	b := New(1)
	if !b.Wait() {
		t.Error("single party must always be the last arrival")
	}
	if b.Parties() != 1 {
		t.Errorf("Parties() = %d, want 1", b.Parties())
	}
}

func TestInvalidParties(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero parties")
		}
	}()
	New(0)
}
