package cbtree

import (
	"testing"
	"time"

	"github.com/ValentinKolb/ltree/lib/tree"
	treetesting "github.com/ValentinKolb/ltree/lib/tree/testing"
)

func testOptions() *Options {
	return &Options{
		PoolCapacity:    1 << 20,
		ReclaimInterval: time.Millisecond,
		PoisonRecycled:  true,
	}
}

func Test(t *testing.T) {
	treetesting.RunTreeTests(t, "CBTree", func() tree.OrderedTree {
		return New(testOptions())
	})
}

func Benchmark(b *testing.B) {
	treetesting.RunTreeBenchmarks(b, "CBTree", func() tree.OrderedTree {
		return New(nil)
	})
}
