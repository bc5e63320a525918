package testing

import (
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/ltree/lib/tree"
	"github.com/ValentinKolb/ltree/lib/tree/util"
	"github.com/cockroachdb/errors"
)

// TreeFactory is a function that creates a new instance of an OrderedTree implementation
type TreeFactory func() tree.OrderedTree

// RunTreeTests runs a comprehensive test suite for an OrderedTree implementation.
func RunTreeTests(t *testing.T, name string, factory TreeFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Insert&Find", func(t *testing.T) {
			testInsertFind(t, factory())
		})

		t.Run("DuplicateKey", func(t *testing.T) {
			testDuplicateKey(t, factory())
		})

		t.Run("Upsert", func(t *testing.T) {
			testUpsert(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("ConcreteScenario", func(t *testing.T) {
			testConcreteScenario(t, factory())
		})

		t.Run("FindGreaterThan&FindLessOrEqual", func(t *testing.T) {
			testNeighbourQueries(t, factory())
		})

		t.Run("ForEach", func(t *testing.T) {
			testForEach(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("RandomOperations", func(t *testing.T) {
			testRandomOperations(t, factory())
		})

		t.Run("Destroy", func(t *testing.T) {
			testDestroy(t, factory())
		})

		t.Run("ConcurrentReaders", func(t *testing.T) {
			testConcurrentReaders(t, factory())
		})

		t.Run("GetInfo", func(t *testing.T) {
			testGetInfo(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the tree supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, tr tree.OrderedTree, feature tree.Feature) {
	if !tr.SupportsFeature(feature) {
		t.Skip()
	}
}

// closeTree releases all resources of a tree
func closeTree(tr tree.OrderedTree) {
	if c, ok := tr.(io.Closer); ok {
		_ = c.Close()
		return
	}
	tr.Destroy(nil)
}

// validate checks the structural invariants if the tree can verify them
func validate(t testing.TB, tr tree.OrderedTree) {
	t.Helper()
	if v, ok := tr.(tree.Validator); ok {
		if err := v.Validate(); err != nil {
			t.Fatalf("Tree invariants violated: %v", err)
		}
	}
}

func valueOf(key uint64) string {
	return fmt.Sprintf("value-%d", key)
}

// keysOf returns all keys in ForEach order
func keysOf(tr tree.OrderedTree) []uint64 {
	var keys []uint64
	tr.ForEach(func(e tree.Entry) bool {
		keys = append(keys, e.Key)
		return true
	})
	return keys
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testInsertFind(t *testing.T, tr tree.OrderedTree) {
	defer closeTree(tr)

	requireFeature(t, tr, tree.FeatureInsert)
	requireFeature(t, tr, tree.FeatureSearch)

	for _, key := range util.ShuffledKeys(1000, 1) {
		if err := tr.Insert(key, valueOf(key)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", key, err)
		}
	}

	if tr.Len() != 1000 {
		t.Errorf("Expected 1000 entries, got %d", tr.Len())
	}

	for key := uint64(1); key <= 1000; key++ {
		value, found := tr.Find(key)
		if !found {
			t.Errorf("Expected key %d to exist after Insert", key)
			continue
		}
		if value != valueOf(key) {
			t.Errorf("Expected value %s, got %s", valueOf(key), value)
		}
	}

	if _, found := tr.Find(1001); found {
		t.Errorf("Expected nonexistent key to return found=false")
	}
	if _, found := tr.Find(0); found {
		t.Errorf("Expected nonexistent key to return found=false")
	}

	validate(t, tr)
}

func testDuplicateKey(t *testing.T, tr tree.OrderedTree) {
	defer closeTree(tr)

	requireFeature(t, tr, tree.FeatureInsert)
	requireFeature(t, tr, tree.FeatureSearch)

	if err := tr.Insert(42, "first"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := tr.Insert(42, "second")
	if !errors.Is(err, tree.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	if value, _ := tr.Find(42); value != "first" {
		t.Errorf("Duplicate insert must retain the existing value, got %s", value)
	}
	if tr.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", tr.Len())
	}
}

func testUpsert(t *testing.T, tr tree.OrderedTree) {
	defer closeTree(tr)

	requireFeature(t, tr, tree.FeatureUpsert)
	requireFeature(t, tr, tree.FeatureSearch)

	for key := uint64(1); key <= 100; key++ {
		replaced, err := tr.Upsert(key, valueOf(key))
		if err != nil || replaced {
			t.Fatalf("Upsert(%d) of a new key: replaced=%v err=%v", key, replaced, err)
		}
	}

	for key := uint64(1); key <= 100; key += 3 {
		replaced, err := tr.Upsert(key, "updated")
		if err != nil || !replaced {
			t.Fatalf("Upsert(%d) of an existing key: replaced=%v err=%v", key, replaced, err)
		}
	}

	if tr.Len() != 100 {
		t.Errorf("Expected 100 entries, got %d", tr.Len())
	}

	for key := uint64(1); key <= 100; key++ {
		want := valueOf(key)
		if (key-1)%3 == 0 {
			want = "updated"
		}
		if value, _ := tr.Find(key); value != want {
			t.Errorf("Key %d: expected %s, got %s", key, want, value)
		}
	}

	validate(t, tr)
}

func testDelete(t *testing.T, tr tree.OrderedTree) {
	defer closeTree(tr)

	requireFeature(t, tr, tree.FeatureInsert)
	requireFeature(t, tr, tree.FeatureErase)

	for key := uint64(1); key <= 200; key++ {
		if err := tr.Insert(key, valueOf(key)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", key, err)
		}
	}

	// delete every even key
	for key := uint64(2); key <= 200; key += 2 {
		value, found, err := tr.Delete(key)
		if err != nil {
			t.Fatalf("Delete(%d) failed: %v", key, err)
		}
		if !found {
			t.Errorf("Expected key %d to be found by Delete", key)
		}
		if value != valueOf(key) {
			t.Errorf("Delete(%d) returned %s, expected %s", key, value, valueOf(key))
		}
	}

	// deleting again is not an error
	if _, found, err := tr.Delete(2); found || err != nil {
		t.Errorf("Delete of a missing key: found=%v err=%v", found, err)
	}

	if tr.Len() != 100 {
		t.Errorf("Expected 100 entries, got %d", tr.Len())
	}

	for key := uint64(1); key <= 200; key++ {
		_, found := tr.Find(key)
		if found != (key%2 == 1) {
			t.Errorf("Key %d: found=%v", key, found)
		}
	}

	validate(t, tr)
}

// testConcreteScenario inserts [5,3,8,1,4,7,9] and erases 8
func testConcreteScenario(t *testing.T, tr tree.OrderedTree) {
	defer closeTree(tr)

	requireFeature(t, tr, tree.FeatureInsert)
	requireFeature(t, tr, tree.FeatureErase)
	requireFeature(t, tr, tree.FeatureFindGreater)
	requireFeature(t, tr, tree.FeatureFindLessOrEqual)

	for _, key := range []uint64{5, 3, 8, 1, 4, 7, 9} {
		if err := tr.Insert(key, valueOf(key)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", key, err)
		}
	}

	if got := keysOf(tr); fmt.Sprint(got) != "[1 3 4 5 7 8 9]" {
		t.Errorf("Expected in order keys [1 3 4 5 7 8 9], got %v", got)
	}

	if e, found := tr.FindGreaterThan(5); !found || e.Key != 7 {
		t.Errorf("FindGreaterThan(5): expected 7, got %v (found=%v)", e.Key, found)
	}
	if e, found := tr.FindLessOrEqual(6); !found || e.Key != 5 {
		t.Errorf("FindLessOrEqual(6): expected 5, got %v (found=%v)", e.Key, found)
	}
	if _, found := tr.FindLessOrEqual(0); found {
		t.Errorf("FindLessOrEqual(0): expected no result")
	}
	if _, found := tr.FindGreaterThan(9); found {
		t.Errorf("FindGreaterThan(9): expected no result")
	}

	if _, found, _ := tr.Delete(8); !found {
		t.Fatalf("Delete(8): expected key to be found")
	}

	if got := keysOf(tr); fmt.Sprint(got) != "[1 3 4 5 7 9]" {
		t.Errorf("Expected in order keys [1 3 4 5 7 9] after delete, got %v", got)
	}
	if _, found := tr.Find(8); found {
		t.Errorf("Find(8) after delete: expected not found")
	}
	if e, found := tr.FindGreaterThan(7); !found || e.Key != 9 {
		t.Errorf("FindGreaterThan(7): expected 9, got %v (found=%v)", e.Key, found)
	}
	if e, found := tr.FindLessOrEqual(8); !found || e.Key != 7 {
		t.Errorf("FindLessOrEqual(8): expected 7, got %v (found=%v)", e.Key, found)
	}

	validate(t, tr)
}

// testNeighbourQueries compares FindGreaterThan and FindLessOrEqual against brute force
func testNeighbourQueries(t *testing.T, tr tree.OrderedTree) {
	defer closeTree(tr)

	requireFeature(t, tr, tree.FeatureInsert)
	requireFeature(t, tr, tree.FeatureFindGreater)
	requireFeature(t, tr, tree.FeatureFindLessOrEqual)

	rng := rand.New(rand.NewSource(99))
	present := make(map[uint64]bool)
	var keys []uint64
	for len(keys) < 2000 {
		key := uint64(rng.Intn(100_000))
		if present[key] {
			continue
		}
		present[key] = true
		keys = append(keys, key)
		if err := tr.Insert(key, valueOf(key)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", key, err)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for i := 0; i < 5000; i++ {
		q := uint64(rng.Intn(100_010))

		// brute force: first index with key > q
		idx := sort.Search(len(keys), func(i int) bool { return keys[i] > q })

		gt, foundGT := tr.FindGreaterThan(q)
		if idx < len(keys) {
			if !foundGT || gt.Key != keys[idx] || gt.Value != valueOf(keys[idx]) {
				t.Fatalf("FindGreaterThan(%d): expected %d, got %d (found=%v)", q, keys[idx], gt.Key, foundGT)
			}
		} else if foundGT {
			t.Fatalf("FindGreaterThan(%d): expected no result, got %d", q, gt.Key)
		}

		le, foundLE := tr.FindLessOrEqual(q)
		if idx > 0 {
			if !foundLE || le.Key != keys[idx-1] {
				t.Fatalf("FindLessOrEqual(%d): expected %d, got %d (found=%v)", q, keys[idx-1], le.Key, foundLE)
			}
		} else if foundLE {
			t.Fatalf("FindLessOrEqual(%d): expected no result, got %d", q, le.Key)
		}
	}
}

func testForEach(t *testing.T, tr tree.OrderedTree) {
	defer closeTree(tr)

	requireFeature(t, tr, tree.FeatureInsert)
	requireFeature(t, tr, tree.FeatureForEach)

	// empty tree
	tr.ForEach(func(e tree.Entry) bool {
		t.Errorf("ForEach on an empty tree visited %d", e.Key)
		return true
	})

	for _, key := range util.ShuffledKeys(500, 3) {
		if err := tr.Insert(key*10, valueOf(key*10)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", key*10, err)
		}
	}

	var prev uint64
	count := 0
	tr.ForEach(func(e tree.Entry) bool {
		if e.Key <= prev {
			t.Errorf("ForEach visited %d after %d", e.Key, prev)
		}
		if e.Value != valueOf(e.Key) {
			t.Errorf("ForEach: key %d has value %s", e.Key, e.Value)
		}
		prev = e.Key
		count++
		return true
	})
	if count != 500 {
		t.Errorf("Expected 500 visited entries, got %d", count)
	}

	// early stop
	count = 0
	tr.ForEach(func(e tree.Entry) bool {
		count++
		return count < 10
	})
	if count != 10 {
		t.Errorf("Expected ForEach to stop after 10 entries, got %d", count)
	}
}

func testEdgeCases(t *testing.T, tr tree.OrderedTree) {
	defer closeTree(tr)

	requireFeature(t, tr, tree.FeatureInsert)
	requireFeature(t, tr, tree.FeatureSearch)
	requireFeature(t, tr, tree.FeatureErase)

	// queries on an empty tree
	if _, found := tr.Find(0); found {
		t.Errorf("Find on an empty tree returned found=true")
	}
	if _, found := tr.FindGreaterThan(0); found {
		t.Errorf("FindGreaterThan on an empty tree returned found=true")
	}
	if _, found := tr.FindLessOrEqual(^uint64(0)); found {
		t.Errorf("FindLessOrEqual on an empty tree returned found=true")
	}
	if _, found, err := tr.Delete(1); found || err != nil {
		t.Errorf("Delete on an empty tree: found=%v err=%v", found, err)
	}

	// extreme keys and empty values
	maxKey := ^uint64(0)
	if err := tr.Insert(0, ""); err != nil {
		t.Fatalf("Insert(0) failed: %v", err)
	}
	if err := tr.Insert(maxKey, "max"); err != nil {
		t.Fatalf("Insert(max) failed: %v", err)
	}

	if value, found := tr.Find(0); !found || value != "" {
		t.Errorf("Find(0): expected empty value, got %q (found=%v)", value, found)
	}
	if e, found := tr.FindGreaterThan(0); !found || e.Key != maxKey {
		t.Errorf("FindGreaterThan(0): expected max key, got %d", e.Key)
	}
	if _, found := tr.FindGreaterThan(maxKey); found {
		t.Errorf("FindGreaterThan(max): expected no result")
	}
	if e, found := tr.FindLessOrEqual(maxKey - 1); !found || e.Key != 0 {
		t.Errorf("FindLessOrEqual(max-1): expected 0, got %d", e.Key)
	}

	// a single entry tree can be emptied and refilled
	for _, key := range []uint64{0, maxKey} {
		if _, found, err := tr.Delete(key); !found || err != nil {
			t.Fatalf("Delete(%d): found=%v err=%v", key, found, err)
		}
	}
	if tr.Len() != 0 {
		t.Errorf("Expected empty tree, got %d entries", tr.Len())
	}
	if err := tr.Insert(7, valueOf(7)); err != nil {
		t.Fatalf("Insert after emptying failed: %v", err)
	}
	validate(t, tr)
}

// testRandomOperations runs a random mix of writes against a map model
func testRandomOperations(t *testing.T, tr tree.OrderedTree) {
	defer closeTree(tr)

	requireFeature(t, tr, tree.FeatureInsert)
	requireFeature(t, tr, tree.FeatureErase)
	requireFeature(t, tr, tree.FeatureUpsert)

	rng := rand.New(rand.NewSource(7))
	model := make(map[uint64]string)

	const numOperations = 20_000
	for i := 0; i < numOperations; i++ {
		key := uint64(rng.Intn(2000))
		switch rng.Intn(10) {
		case 0, 1, 2, 3: // insert
			err := tr.Insert(key, valueOf(key))
			if _, exists := model[key]; exists {
				if !errors.Is(err, tree.ErrDuplicateKey) {
					t.Fatalf("Insert(%d) of an existing key: expected ErrDuplicateKey, got %v", key, err)
				}
			} else {
				if err != nil {
					t.Fatalf("Insert(%d) failed: %v", key, err)
				}
				model[key] = valueOf(key)
			}
		case 4: // upsert
			value := fmt.Sprintf("upsert-%d", i)
			replaced, err := tr.Upsert(key, value)
			if err != nil {
				t.Fatalf("Upsert(%d) failed: %v", key, err)
			}
			if _, exists := model[key]; exists != replaced {
				t.Fatalf("Upsert(%d): replaced=%v, model has key=%v", key, replaced, exists)
			}
			model[key] = value
		case 5, 6, 7: // delete
			value, found, err := tr.Delete(key)
			if err != nil {
				t.Fatalf("Delete(%d) failed: %v", key, err)
			}
			want, exists := model[key]
			if found != exists || value != want {
				t.Fatalf("Delete(%d): got (%s, %v), expected (%s, %v)", key, value, found, want, exists)
			}
			delete(model, key)
		default: // find
			value, found := tr.Find(key)
			want, exists := model[key]
			if found != exists || value != want {
				t.Fatalf("Find(%d): got (%s, %v), expected (%s, %v)", key, value, found, want, exists)
			}
		}

		if i%1000 == 0 {
			validate(t, tr)
		}
	}

	if tr.Len() != len(model) {
		t.Errorf("Expected %d entries, got %d", len(model), tr.Len())
	}

	keys := keysOf(tr)
	if len(keys) != len(model) {
		t.Fatalf("ForEach visited %d entries, expected %d", len(keys), len(model))
	}
	for i, key := range keys {
		if i > 0 && keys[i-1] >= key {
			t.Fatalf("Keys out of order: %d before %d", keys[i-1], key)
		}
		if _, exists := model[key]; !exists {
			t.Fatalf("Key %d is in the tree but not in the model", key)
		}
	}
	validate(t, tr)
}

// testDestroy tears down a large tree and checks that every entry is cleaned
// up exactly once and all nodes went back to the pool
func testDestroy(t *testing.T, tr tree.OrderedTree) {
	defer closeTree(tr)

	requireFeature(t, tr, tree.FeatureInsert)
	requireFeature(t, tr, tree.FeatureErase)

	const numKeys = 10_000
	for _, key := range util.ShuffledKeys(numKeys, 11) {
		if err := tr.Insert(key, valueOf(key)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", key, err)
		}
	}
	// some churn, so retired nodes are in flight
	for key := uint64(1); key <= numKeys; key += 10 {
		if _, _, err := tr.Delete(key); err != nil {
			t.Fatalf("Delete(%d) failed: %v", key, err)
		}
	}
	remaining := tr.Len()

	seen := make(map[uint64]int, remaining)
	var prev uint64
	tr.Destroy(func(e tree.Entry) {
		if e.Key <= prev && len(seen) > 0 {
			t.Errorf("Cleanup visited %d after %d", e.Key, prev)
		}
		if e.Value != valueOf(e.Key) {
			t.Errorf("Cleanup: key %d has value %s", e.Key, e.Value)
		}
		prev = e.Key
		seen[e.Key]++
	})

	if len(seen) != remaining {
		t.Errorf("Cleanup visited %d distinct entries, expected %d", len(seen), remaining)
	}
	for key, n := range seen {
		if n != 1 {
			t.Errorf("Cleanup visited key %d %d times", key, n)
		}
	}

	if tr.Len() != 0 {
		t.Errorf("Expected empty tree after Destroy, got %d entries", tr.Len())
	}
	if _, found := tr.Find(2); found {
		t.Errorf("Find after Destroy returned found=true")
	}

	info := tr.GetInfo()
	if info.Pool.InUse != 0 {
		t.Errorf("Expected all nodes to be recycled after Destroy, %d still in use", info.Pool.InUse)
	}
	if info.Pool.Allocated != info.Pool.Recycled {
		t.Errorf("Allocated (%d) and recycled (%d) nodes do not balance", info.Pool.Allocated, info.Pool.Recycled)
	}
}

// testConcurrentReaders runs lock-free readers against a single writer.
// Keys 1..stable are never touched by the writer and must always be found.
func testConcurrentReaders(t *testing.T, tr tree.OrderedTree) {
	defer closeTree(tr)

	requireFeature(t, tr, tree.FeatureLockFreeReads)
	requireFeature(t, tr, tree.FeatureInsert)
	requireFeature(t, tr, tree.FeatureErase)

	const stable = 1000
	const volatile = 1000
	const numReaders = 8
	const writes = 20_000

	for key := uint64(1); key <= stable; key++ {
		if err := tr.Insert(key, valueOf(key)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", key, err)
		}
	}

	var stop atomic.Bool
	var errCount atomic.Int64
	var wg sync.WaitGroup

	wg.Add(numReaders)
	for r := 0; r < numReaders; r++ {
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for !stop.Load() {
				key := uint64(rng.Intn(stable+volatile)) + 1
				value, found := tr.Find(key)
				if key <= stable && !found {
					errCount.Add(1)
				}
				if found && value != valueOf(key) {
					errCount.Add(1)
				}
				if e, ok := tr.FindGreaterThan(key); ok && e.Key <= key {
					errCount.Add(1)
				}
				if e, ok := tr.FindLessOrEqual(key); key <= stable && (!ok || e.Key != key) {
					errCount.Add(1)
				}
			}
		}(int64(r))
	}

	// single writer churns the volatile key range
	rng := rand.New(rand.NewSource(1234))
	for i := 0; i < writes; i++ {
		key := uint64(stable + 1 + rng.Intn(volatile))
		if rng.Intn(2) == 0 {
			err := tr.Insert(key, valueOf(key))
			if err != nil && !errors.Is(err, tree.ErrDuplicateKey) {
				t.Errorf("Insert(%d) failed: %v", key, err)
			}
		} else {
			if _, _, err := tr.Delete(key); err != nil {
				t.Errorf("Delete(%d) failed: %v", key, err)
			}
		}
	}

	stop.Store(true)
	wg.Wait()

	if n := errCount.Load(); n > 0 {
		t.Fatalf("Readers observed %d inconsistent results", n)
	}
	validate(t, tr)
}

func testGetInfo(t *testing.T, tr tree.OrderedTree) {
	defer closeTree(tr)

	requireFeature(t, tr, tree.FeatureInsert)

	for key := uint64(1); key <= 100; key++ {
		if err := tr.Insert(key, valueOf(key)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", key, err)
		}
	}

	info := tr.GetInfo()
	if info.Size != 100 {
		t.Errorf("Expected size 100, got %d", info.Size)
	}
	if info.TreeType != tree.ImplCBTree && info.TreeType != tree.ImplOrdTree {
		t.Errorf("Unexpected tree type %q", info.TreeType)
	}
	if info.Height <= 0 || info.Height > 100 {
		t.Errorf("Unexpected height %d", info.Height)
	}
	if info.Pool.InUse < 100 {
		t.Errorf("Expected at least 100 nodes in use, got %d", info.Pool.InUse)
	}
	for _, f := range info.SupportedFeatures {
		if !tr.SupportsFeature(f) {
			t.Errorf("Feature %s reported but not supported", f)
		}
	}
}
