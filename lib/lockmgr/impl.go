package lockmgr

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"
)

// NewLock creates a lock of the given kind
func NewLock(kind Kind) (ILock, error) {
	switch kind {
	case KindMutex:
		return &mutexLock{}, nil
	case KindRWLock:
		return &rwLock{}, nil
	case KindSpinlock:
		return &spinLock{}, nil
	case KindRWSem:
		return newRWSem(), nil
	default:
		return nil, errors.Newf("unknown lock kind %q", kind)
	}
}

// --------------------------------------------------------------------------
// mutex
// --------------------------------------------------------------------------

type mutexLock struct {
	mu sync.Mutex
}

func (l *mutexLock) RLock()     { l.mu.Lock() }
func (l *mutexLock) RUnlock()   { l.mu.Unlock() }
func (l *mutexLock) Lock()      { l.mu.Lock() }
func (l *mutexLock) Unlock()    { l.mu.Unlock() }
func (l *mutexLock) Kind() Kind { return KindMutex }

// --------------------------------------------------------------------------
// rwlock
// --------------------------------------------------------------------------

type rwLock struct {
	mu sync.RWMutex
}

func (l *rwLock) RLock()     { l.mu.RLock() }
func (l *rwLock) RUnlock()   { l.mu.RUnlock() }
func (l *rwLock) Lock()      { l.mu.Lock() }
func (l *rwLock) Unlock()    { l.mu.Unlock() }
func (l *rwLock) Kind() Kind { return KindRWLock }

// --------------------------------------------------------------------------
// spinlock
// --------------------------------------------------------------------------

// maxSpin bounds the number of reads between two acquire attempts
const maxSpin = 1 << 10

// spinLock busy-waits and never yields or parks on a runtime primitive. A
// waiter only reads the state until the lock looks free, the backoff between
// acquire attempts grows exponentially. Preemption keeps a spinning goroutine
// from starving the holder.
type spinLock struct {
	state atomic.Int32
}

func (l *spinLock) Lock() {
	spin := 1
	for {
		if l.state.CompareAndSwap(0, 1) {
			return
		}
		for i := 0; i < spin && l.state.Load() != 0; i++ {
		}
		if spin < maxSpin {
			spin <<= 1
		}
	}
}

func (l *spinLock) Unlock() {
	if l.state.Swap(0) != 1 {
		panic(errors.AssertionFailedf("spinlock: unlock of unlocked lock"))
	}
}

func (l *spinLock) RLock()     { l.Lock() }
func (l *spinLock) RUnlock()   { l.Unlock() }
func (l *spinLock) Kind() Kind { return KindSpinlock }

// --------------------------------------------------------------------------
// rwsem
// --------------------------------------------------------------------------

// maxReaders is the total weight of a rwsem. A writer takes all of it.
const maxReaders = 1 << 30

// rwSem is a reader/writer semaphore. Waiters are served in FIFO order, so a
// queued writer holds back readers that arrive after it.
type rwSem struct {
	sem *semaphore.Weighted
}

func newRWSem() *rwSem {
	return &rwSem{sem: semaphore.NewWeighted(maxReaders)}
}

func (l *rwSem) RLock() {
	// Acquire only fails if the context is done
	_ = l.sem.Acquire(context.Background(), 1)
}

func (l *rwSem) RUnlock() { l.sem.Release(1) }

func (l *rwSem) Lock() {
	_ = l.sem.Acquire(context.Background(), maxReaders)
}

func (l *rwSem) Unlock()    { l.sem.Release(maxReaders) }
func (l *rwSem) Kind() Kind { return KindRWSem }
