package testing

import (
	"math/rand"
	"testing"

	"github.com/ValentinKolb/ltree/lib/tree"
	"github.com/ValentinKolb/ltree/lib/tree/util"
)

// RunTreeBenchmarks runs all benchmarks for an ordered tree implementation.
// Writers are always serialized, only lookups run in parallel.
func RunTreeBenchmarks(b *testing.B, name string, factory TreeFactory) {

	b.Run("Insert", func(b *testing.B) {
		benchmarkInsert(b, factory())
	})

	b.Run("Upsert", func(b *testing.B) {
		benchmarkUpsert(b, factory())
	})

	b.Run("Find", func(b *testing.B) {
		benchmarkFind(b, factory())
	})

	b.Run("Find(not)", func(b *testing.B) {
		benchmarkFindNot(b, factory())
	})

	b.Run("FindGreaterThan", func(b *testing.B) {
		benchmarkFindGreaterThan(b, factory())
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, factory())
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// prefill inserts the keys 1..n
func prefill(b *testing.B, tr tree.OrderedTree, n int) {
	for _, key := range util.ShuffledKeys(n, 5) {
		if err := tr.Insert(key, valueOf(key)); err != nil {
			b.Fatalf("Insert(%d) failed: %v", key, err)
		}
	}
}

// Benchmark for Insert operation
func benchmarkInsert(b *testing.B, tr tree.OrderedTree) {
	b.Cleanup(func() {
		closeTree(tr)
	})

	requireFeature(b, tr, tree.FeatureInsert)

	keys := util.ShuffledKeys(b.N, 1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tr.Insert(keys[i], "bench-value")
	}
}

// Benchmark for Upsert of existing keys
func benchmarkUpsert(b *testing.B, tr tree.OrderedTree) {
	b.Cleanup(func() {
		closeTree(tr)
	})

	requireFeature(b, tr, tree.FeatureUpsert)

	numKeys := 10000
	prefill(b, tr, numKeys)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = tr.Upsert(uint64(i%numKeys)+1, "updated-value")
	}
}

// Parallel benchmarking for Find operation
func benchmarkFind(b *testing.B, tr tree.OrderedTree) {
	b.Cleanup(func() {
		closeTree(tr)
	})

	requireFeature(b, tr, tree.FeatureSearch)

	numKeys := 10000
	prefill(b, tr, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			tr.Find(uint64(counter%numKeys) + 1)
			counter++
		}
	})
}

// Parallel benchmarking for Find operation (with key miss)
func benchmarkFindNot(b *testing.B, tr tree.OrderedTree) {
	b.Cleanup(func() {
		closeTree(tr)
	})

	requireFeature(b, tr, tree.FeatureSearch)

	numKeys := 10000
	prefill(b, tr, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			tr.Find(uint64(numKeys + 1 + counter))
			counter++
		}
	})
}

// Parallel benchmarking for FindGreaterThan operation
func benchmarkFindGreaterThan(b *testing.B, tr tree.OrderedTree) {
	b.Cleanup(func() {
		closeTree(tr)
	})

	requireFeature(b, tr, tree.FeatureFindGreater)

	numKeys := 10000
	prefill(b, tr, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			tr.FindGreaterThan(uint64(counter % numKeys))
			counter++
		}
	})
}

// Benchmark for Delete operation
func benchmarkDelete(b *testing.B, tr tree.OrderedTree) {
	b.Cleanup(func() {
		closeTree(tr)
	})

	requireFeature(b, tr, tree.FeatureInsert)
	requireFeature(b, tr, tree.FeatureErase)

	numKeys := 100000
	if b.N < numKeys {
		numKeys = b.N
	}
	prefill(b, tr, numKeys)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = tr.Delete(uint64(i%numKeys) + 1)
	}
}

// Benchmark for a mixed usage pattern (80% reads, 10% inserts, 10% deletes)
func benchmarkMixedUsage(b *testing.B, tr tree.OrderedTree) {
	b.Cleanup(func() {
		closeTree(tr)
	})

	requireFeature(b, tr, tree.FeatureInsert)
	requireFeature(b, tr, tree.FeatureErase)
	requireFeature(b, tr, tree.FeatureSearch)

	numKeys := 10000
	prefill(b, tr, numKeys)
	rng := rand.New(rand.NewSource(42))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := uint64(rng.Intn(2*numKeys)) + 1
		switch rng.Intn(10) {
		case 0:
			_ = tr.Insert(key, "mixed-value")
		case 1:
			_, _, _ = tr.Delete(key)
		default:
			tr.Find(key)
		}
	}
}
