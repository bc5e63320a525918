package ordtree

import (
	"testing"

	"github.com/ValentinKolb/ltree/lib/tree"
	treetesting "github.com/ValentinKolb/ltree/lib/tree/testing"
)

func Test(t *testing.T) {
	treetesting.RunTreeTests(t, "OrdTree", func() tree.OrderedTree {
		return New(&Options{PoolCapacity: 1 << 20, PoisonRecycled: true})
	})
}

func Benchmark(b *testing.B) {
	treetesting.RunTreeBenchmarks(b, "OrdTree", func() tree.OrderedTree {
		return New(nil)
	})
}
