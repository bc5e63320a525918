// Package lockmgr provides the lock kinds used by the store to serialize
// access to tree backends that have no internal synchronization.
//
// Every lock implements ILock with a shared mode (RLock/RUnlock) and an
// exclusive mode (Lock/Unlock):
//
//   - mutex: sync.Mutex. There is no shared mode, readers exclude each other.
//   - rwlock: sync.RWMutex. Readers share, writers are exclusive.
//   - spinlock: A compare-and-swap flag. Waiters busy-wait on the flag and
//     never yield or park. No shared mode.
//   - rwsem: A weighted semaphore (golang.org/x/sync/semaphore). Readers take
//     a weight of one, writers the full weight. Waiters are served in FIFO
//     order, a queued writer blocks readers that arrive later.
//
// Usage Example:
//
//	kind, err := lockmgr.ParseKind("RWSEM")
//	if err != nil {
//	    // Handle error
//	}
//	lock, _ := lockmgr.NewLock(kind)
//
//	lock.RLock()
//	// read shared state
//	lock.RUnlock()
//
// None of the locks are reentrant.
package lockmgr
