// Package barrier provides a reusable rendezvous point for a fixed number of
// goroutines. It is used by the benchmark driver to start and stop the
// benchmark stages of all workers at the same time.
//
// Example usage:
//
//	b := barrier.New(workers)
//	for i := 0; i < workers; i++ {
//	    go func() {
//	        b.Wait() // all workers start together
//	        run()
//	        b.Wait() // all workers finished
//	    }()
//	}
package barrier

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Barrier blocks callers of Wait until n goroutines arrived, then releases all
// of them. The barrier resets itself afterward and can be used again.
type Barrier struct {
	n          int
	arrived    int
	generation uint64
	mut        sync.Mutex
	cond       *sync.Cond
}

// New creates a barrier for n goroutines. n must be positive.
func New(n int) *Barrier {
	if n <= 0 {
		panic(errors.AssertionFailedf("barrier: invalid number of parties %d", n))
	}
	b := &Barrier{n: n}
	b.cond = sync.NewCond(&b.mut)
	return b
}

// Wait blocks until n goroutines called Wait in the current generation.
// It returns true for exactly one caller per generation (the last to arrive).
func (b *Barrier) Wait() bool {
	b.mut.Lock()
	defer b.mut.Unlock()

	gen := b.generation
	b.arrived++
	if b.arrived == b.n {
		b.arrived = 0
		b.generation++
		b.cond.Broadcast()
		return true
	}

	// spurious wakeups are possible, only a new generation releases us
	for gen == b.generation {
		b.cond.Wait()
	}
	return false
}

// Parties returns the number of goroutines the barrier waits for
func (b *Barrier) Parties() int {
	return b.n
}
