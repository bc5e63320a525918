package ordtree

import (
	"testing"

	"github.com/ValentinKolb/ltree/lib/tree"
	"github.com/cockroachdb/errors"
)

// TestAllocationFailure fills a tiny pool and checks that the tree is unchanged afterwards
func TestAllocationFailure(t *testing.T) {
	tr := newTree(&Options{PoolCapacity: 8})

	for key := uint64(1); key <= 8; key++ {
		if err := tr.Insert(key, "v"); err != nil {
			t.Fatalf("Insert(%d) failed: %v", key, err)
		}
	}

	if err := tr.Insert(9, "v"); !errors.Is(err, tree.ErrAllocationFailure) {
		t.Fatalf("Expected ErrAllocationFailure, got %v", err)
	}
	if _, err := tr.Upsert(10, "v"); !errors.Is(err, tree.ErrAllocationFailure) {
		t.Fatalf("Expected ErrAllocationFailure for Upsert, got %v", err)
	}

	// replacing an existing value needs no new item
	if replaced, err := tr.Upsert(3, "w"); err != nil || !replaced {
		t.Fatalf("Upsert(3): replaced=%v err=%v", replaced, err)
	}

	if tr.Len() != 8 {
		t.Errorf("Expected 8 entries, got %d", tr.Len())
	}
	if _, found := tr.Find(9); found {
		t.Error("Key 9 must not be present")
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	// deleting frees capacity immediately
	if _, found, _ := tr.Delete(1); !found {
		t.Fatal("Delete(1) did not find the key")
	}
	if err := tr.Insert(9, "v"); err != nil {
		t.Errorf("Insert after Delete failed: %v", err)
	}
}

// TestDestroyRecyclesItems checks the pool accounting after Destroy
func TestDestroyRecyclesItems(t *testing.T) {
	tr := newTree(&Options{Degree: 2, PoolCapacity: 1000, PoisonRecycled: true})

	for key := uint64(0); key < 500; key++ {
		_ = tr.Insert(key, "v")
	}

	cleaned := 0
	tr.Destroy(func(tree.Entry) { cleaned++ })

	if cleaned != 500 {
		t.Errorf("Expected 500 cleanups, got %d", cleaned)
	}
	if info := tr.GetInfo(); info.Pool.InUse != 0 || info.Size != 0 {
		t.Errorf("Unexpected info after Destroy: %+v", info)
	}

	// the tree is usable again
	if err := tr.Insert(1, "v"); err != nil {
		t.Errorf("Insert after Destroy failed: %v", err)
	}
}

// TestMinHeight checks the reported height
func TestMinHeight(t *testing.T) {
	cases := []struct {
		n, degree, want int
	}{
		{0, 2, 0},
		{1, 2, 1},
		{3, 2, 1},
		{4, 2, 2},
		{15, 2, 2},
		{16, 2, 3},
		{63, 32, 1},
		{64, 32, 2},
	}
	for _, c := range cases {
		if got := minHeight(c.n, c.degree); got != c.want {
			t.Errorf("minHeight(%d, %d) = %d, expected %d", c.n, c.degree, got, c.want)
		}
	}
}
