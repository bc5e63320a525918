package lockmgr

// Kind identifies a lock implementation
type Kind string

const (
	KindMutex    Kind = "mutex"    // sync.Mutex, shared mode == exclusive mode
	KindRWLock   Kind = "rwlock"   // sync.RWMutex
	KindSpinlock Kind = "spinlock" // busy waiting, shared mode == exclusive mode
	KindRWSem    Kind = "rwsem"    // weighted FIFO semaphore, writers take the full weight
)

// ILock is a lock with a shared (read) and an exclusive (write) mode.
// Kinds without a real shared mode map RLock/RUnlock to Lock/Unlock.
type ILock interface {
	// RLock acquires the lock in shared mode
	RLock()

	// RUnlock releases the shared mode
	RUnlock()

	// Lock acquires the lock in exclusive mode
	Lock()

	// Unlock releases the exclusive mode
	Unlock()

	// Kind returns the kind of the lock
	Kind() Kind
}
