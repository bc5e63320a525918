// Package lstore implements a local, in-memory key-value store based on the
// store.IStore interface. It combines one lock of the lockmgr package with one
// tree of the lib/tree package. Data is stored entirely in memory and is not
// persisted between process restarts.
//
// Key Features:
//   - Lock kind and backend are selected once in NewLocalStore
//   - Lock-free readers when the backend supports tree.FeatureLockFreeReads
//   - Tree errors are translated into store errors with matching return codes
//
// Implementation Details:
//
//   - Access Strategies: the read and write side of the store are bound to an
//     access strategy at construction. Writers always use the exclusive mode
//     of the configured lock, even for the concurrent tree, which supports many
//     readers but only one writer. Readers use the shared mode of the lock
//     (mutex and spinlock have none, so shared and exclusive coincide) unless
//     the tree supports lock-free reads, in which case acquiring read
//     permission is a no-op.
//
//   - Teardown: Destroy takes the write lock, hands every entry to the cleanup
//     callback and returns all nodes to the pool of the tree. Trees that own
//     background goroutines (the concurrent tree's reclaimer) are closed.
//
// Usage Example:
//
//	s, err := lstore.NewLocalStore(store.Config{
//		Lock:    lockmgr.KindRWLock,
//		Backend: tree.ImplCBTree,
//	})
//	if err != nil {
//		return err
//	}
//	defer s.Destroy(nil)
//
//	s.WriteAcquire()
//	err = s.Insert(42, "answer")
//	s.WriteRelease()
//
//	s.ReadAcquire()
//	value, found := s.Search(42)
//	s.ReadRelease()
package lstore
