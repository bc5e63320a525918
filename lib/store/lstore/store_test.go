package lstore

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/ltree/lib/lockmgr"
	"github.com/ValentinKolb/ltree/lib/store"
	"github.com/ValentinKolb/ltree/lib/tree"
	"github.com/ValentinKolb/ltree/lib/tree/util"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

var backends = []tree.Implementation{tree.ImplOrdTree, tree.ImplCBTree}

// forEachConfig runs fn for every combination of lock kind and backend
func forEachConfig(t *testing.T, fn func(t *testing.T, conf store.Config)) {
	for _, backend := range backends {
		for _, kind := range lockmgr.Kinds() {
			conf := store.Config{
				Lock:            kind,
				Backend:         backend,
				PoolCapacity:    1 << 18,
				ReclaimInterval: time.Millisecond,
			}
			t.Run(fmt.Sprintf("%s-%s", backend, kind), func(t *testing.T) {
				fn(t, conf)
			})
		}
	}
}

func mustCreate(t *testing.T, conf store.Config) store.IStore {
	t.Helper()
	s, err := NewLocalStore(conf)
	if err != nil {
		t.Fatalf("NewLocalStore(%+v) failed: %v", conf, err)
	}
	return s
}

func insert(t *testing.T, s store.IStore, key uint64, value string) {
	t.Helper()
	s.WriteAcquire()
	err := s.Insert(key, value)
	s.WriteRelease()
	if err != nil {
		t.Fatalf("Insert(%d) failed: %v", key, err)
	}
}

func search(s store.IStore, key uint64) (string, bool) {
	s.ReadAcquire()
	defer s.ReadRelease()
	return s.Search(key)
}

func keysOf(s store.IStore) []uint64 {
	var keys []uint64
	s.ReadAcquire()
	s.ForEach(func(e tree.Entry) bool {
		keys = append(keys, e.Key)
		return true
	})
	s.ReadRelease()
	return keys
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestInvalidConfig(t *testing.T) {
	_, err := NewLocalStore(store.Config{Lock: "ticket", Backend: tree.ImplCBTree})
	if !store.IsCode(err, store.RetCInvalidOperation) {
		t.Errorf("expected RetCInvalidOperation for unknown lock, got %v", err)
	}

	_, err = NewLocalStore(store.Config{Lock: lockmgr.KindMutex, Backend: "avl"})
	if !store.IsCode(err, store.RetCInvalidOperation) {
		t.Errorf("expected RetCInvalidOperation for unknown backend, got %v", err)
	}
}

func TestConcreteScenario(t *testing.T) {
	forEachConfig(t, func(t *testing.T, conf store.Config) {
		s := mustCreate(t, conf)
		defer s.Destroy(nil)

		for _, k := range []uint64{5, 3, 8, 1, 4, 7, 9} {
			insert(t, s, k, fmt.Sprintf("value-%d", k))
		}
		if got := fmt.Sprint(keysOf(s)); got != "[1 3 4 5 7 8 9]" {
			t.Errorf("traversal = %s, want [1 3 4 5 7 8 9]", got)
		}

		s.WriteAcquire()
		found, err := s.Erase(8)
		s.WriteRelease()
		if err != nil || !found {
			t.Fatalf("Erase(8) = %v, %v; want true, nil", found, err)
		}
		if got := fmt.Sprint(keysOf(s)); got != "[1 3 4 5 7 9]" {
			t.Errorf("traversal = %s, want [1 3 4 5 7 9]", got)
		}
		if _, ok := search(s, 8); ok {
			t.Error("key 8 found after erase")
		}
		if v, ok := search(s, 3); !ok || v != "value-3" {
			t.Errorf("Search(3) = %q, %v; want value-3, true", v, ok)
		}

		s.WriteAcquire()
		found, err = s.Erase(8)
		s.WriteRelease()
		if err != nil || found {
			t.Errorf("second Erase(8) = %v, %v; want false, nil", found, err)
		}
	})
}

func TestDuplicateKey(t *testing.T) {
	forEachConfig(t, func(t *testing.T, conf store.Config) {
		s := mustCreate(t, conf)
		defer s.Destroy(nil)

		insert(t, s, 1, "first")

		s.WriteAcquire()
		err := s.Insert(1, "second")
		s.WriteRelease()

		if !store.IsCode(err, store.RetCDuplicateKey) {
			t.Errorf("expected RetCDuplicateKey, got %v", err)
		}
		if !errors.Is(err, tree.ErrDuplicateKey) {
			t.Errorf("store error does not unwrap to tree.ErrDuplicateKey: %v", err)
		}
		if v, _ := search(s, 1); v != "first" {
			t.Errorf("existing value was overwritten: %q", v)
		}

		s.WriteAcquire()
		replaced, err := s.Upsert(1, "second")
		s.WriteRelease()
		if err != nil || !replaced {
			t.Errorf("Upsert = %v, %v; want true, nil", replaced, err)
		}
		if v, _ := search(s, 1); v != "second" {
			t.Errorf("value after Upsert = %q, want second", v)
		}
	})
}

func TestNeighbourQueries(t *testing.T) {
	forEachConfig(t, func(t *testing.T, conf store.Config) {
		s := mustCreate(t, conf)
		defer s.Destroy(nil)

		for _, k := range []uint64{10, 20, 30} {
			insert(t, s, k, "v")
		}

		s.ReadAcquire()
		defer s.ReadRelease()

		if e, ok := s.FindGreaterThan(10); !ok || e.Key != 20 {
			t.Errorf("FindGreaterThan(10) = %v, %v; want 20", e, ok)
		}
		if _, ok := s.FindGreaterThan(30); ok {
			t.Error("FindGreaterThan(30) found an entry")
		}
		if e, ok := s.FindLessOrEqual(25); !ok || e.Key != 20 {
			t.Errorf("FindLessOrEqual(25) = %v, %v; want 20", e, ok)
		}
		if _, ok := s.FindLessOrEqual(9); ok {
			t.Error("FindLessOrEqual(9) found an entry")
		}
	})
}

func TestAllocationFailure(t *testing.T) {
	s := mustCreate(t, store.Config{
		Lock:         lockmgr.KindMutex,
		Backend:      tree.ImplOrdTree,
		PoolCapacity: 4,
	})
	defer s.Destroy(nil)

	for k := uint64(1); k <= 4; k++ {
		insert(t, s, k, "v")
	}

	s.WriteAcquire()
	err := s.Insert(5, "v")
	s.WriteRelease()

	if !store.IsCode(err, store.RetCAllocationFailure) {
		t.Errorf("expected RetCAllocationFailure, got %v", err)
	}
	if !errors.Is(err, tree.ErrAllocationFailure) {
		t.Errorf("store error does not unwrap to tree.ErrAllocationFailure: %v", err)
	}
	if got := fmt.Sprint(keysOf(s)); got != "[1 2 3 4]" {
		t.Errorf("store changed after failed insert: %s", got)
	}
}

func TestDestroy(t *testing.T) {
	forEachConfig(t, func(t *testing.T, conf store.Config) {
		s := mustCreate(t, conf)

		const n = 10000
		keys := util.ShuffledKeys(n, 7)
		for _, k := range keys {
			insert(t, s, k, fmt.Sprintf("value-%d", k))
		}

		seen := make(map[uint64]int, n)
		err := s.Destroy(func(e tree.Entry) {
			if e.Value != fmt.Sprintf("value-%d", e.Key) {
				t.Errorf("cleanup got wrong value for key %d: %q", e.Key, e.Value)
			}
			seen[e.Key]++
		})
		if err != nil {
			t.Fatalf("Destroy failed: %v", err)
		}

		if len(seen) != n {
			t.Errorf("cleanup was called for %d keys, want %d", len(seen), n)
		}
		for k, c := range seen {
			if c != 1 {
				t.Errorf("cleanup was called %d times for key %d", c, k)
			}
		}
	})
}

// TestLockFreeReads checks that readers of the concurrent tree are not
// blocked by a writer holding the write permission
func TestLockFreeReads(t *testing.T) {
	for _, kind := range lockmgr.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			s := mustCreate(t, store.Config{Lock: kind, Backend: tree.ImplCBTree})
			defer s.Destroy(nil)
			insert(t, s, 1, "one")

			s.WriteAcquire()
			done := make(chan string)
			go func() {
				v, _ := search(s, 1)
				done <- v
			}()

			select {
			case v := <-done:
				if v != "one" {
					t.Errorf("Search(1) = %q, want one", v)
				}
			case <-time.After(5 * time.Second):
				t.Error("reader was blocked by the writer")
				s.WriteRelease()
				<-done
				return
			}
			s.WriteRelease()
		})
	}
}

// TestLockedReads checks that readers of the explicit-lock tree wait for the writer
func TestLockedReads(t *testing.T) {
	for _, kind := range lockmgr.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			s := mustCreate(t, store.Config{Lock: kind, Backend: tree.ImplOrdTree})
			defer s.Destroy(nil)
			insert(t, s, 1, "one")

			s.WriteAcquire()
			var finished atomic.Bool
			done := make(chan struct{})
			go func() {
				search(s, 1)
				finished.Store(true)
				close(done)
			}()

			time.Sleep(20 * time.Millisecond)
			if finished.Load() {
				t.Error("reader finished while the writer held the lock")
			}
			s.WriteRelease()
			<-done
		})
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	forEachConfig(t, func(t *testing.T, conf store.Config) {
		s := mustCreate(t, conf)
		defer s.Destroy(nil)

		// even keys are stable, odd keys are inserted and erased by the writers
		const n = 512
		for k := uint64(0); k < n; k += 2 {
			insert(t, s, k, fmt.Sprintf("value-%d", k))
		}

		var stop atomic.Bool
		var wg sync.WaitGroup
		var missing atomic.Int64

		for r := 0; r < 4; r++ {
			wg.Add(1)
			go func(seed int64) {
				defer wg.Done()
				rng := rand.New(rand.NewSource(seed))
				for !stop.Load() {
					k := uint64(rng.Intn(n/2)) * 2
					v, ok := search(s, k)
					if !ok || v != fmt.Sprintf("value-%d", k) {
						missing.Add(1)
					}
				}
			}(int64(r))
		}

		for w := 0; w < 2; w++ {
			wg.Add(1)
			go func(seed int64) {
				defer wg.Done()
				rng := rand.New(rand.NewSource(seed))
				for i := 0; i < 2000; i++ {
					k := uint64(rng.Intn(n/2))*2 + 1
					s.WriteAcquire()
					_, _, err := eraseOrInsert(s, k)
					s.WriteRelease()
					if err != nil {
						t.Errorf("write of key %d failed: %v", k, err)
						return
					}
				}
			}(int64(100 + w))
		}

		time.Sleep(50 * time.Millisecond)
		stop.Store(true)
		wg.Wait()

		if m := missing.Load(); m != 0 {
			t.Errorf("readers missed a stable key %d times", m)
		}
		for _, k := range keysOf(s) {
			if v, ok := search(s, k); !ok || v != fmt.Sprintf("value-%d", k) {
				t.Errorf("key %d has wrong value %q", k, v)
			}
		}
	})
}

// eraseOrInsert erases key if present, otherwise inserts it.
// Must be called with the write permission held.
func eraseOrInsert(s store.IStore, key uint64) (inserted, found bool, err error) {
	found, err = s.Erase(key)
	if err != nil || found {
		return false, found, err
	}
	return true, false, s.Insert(key, fmt.Sprintf("value-%d", key))
}

func TestInfo(t *testing.T) {
	s := mustCreate(t, store.Config{Lock: lockmgr.KindRWSem, Backend: tree.ImplCBTree})
	defer s.Destroy(nil)

	for k := uint64(1); k <= 100; k++ {
		insert(t, s, k, "v")
	}

	info := s.Info()
	if info.Lock != lockmgr.KindRWSem {
		t.Errorf("Lock = %s, want rwsem", info.Lock)
	}
	if info.Tree.TreeType != tree.ImplCBTree {
		t.Errorf("TreeType = %s, want cbtree", info.Tree.TreeType)
	}
	if info.Tree.Size != 100 {
		t.Errorf("Size = %d, want 100", info.Tree.Size)
	}
}
