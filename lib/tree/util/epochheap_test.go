package util

import (
	"math/rand"
	"sort"
	"testing"
)

// TestNewEpochHeap tests the creation of a new EpochHeap
func TestNewEpochHeap(t *testing.T) {
	q := NewEpochHeap[string]()

	if q == nil {
		t.Fatal("NewEpochHeap() returned nil")
	}
	if q.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", q.Len())
	}
	if _, ok := q.Peek(); ok {
		t.Error("Peek() on an empty heap should return false")
	}
	if it := q.PopMin(); it != nil {
		t.Errorf("PopMin() on an empty heap should return nil, got %v", it)
	}
}

// TestPushPeekPop tests the min-heap order
func TestPushPeekPop(t *testing.T) {
	q := NewEpochHeap[string]()

	q.Push(5, "five")
	q.Push(2, "two")
	q.Push(9, "nine")
	q.Push(1, "one")

	if q.Len() != 4 {
		t.Fatalf("Heap should have 4 items, but has %d", q.Len())
	}

	it, ok := q.Peek()
	if !ok || it.Priority != 1 || it.Value != "one" {
		t.Fatalf("Expected min item (1, one), got %v", it)
	}

	expected := []string{"one", "two", "five", "nine"}
	for i, want := range expected {
		it := q.PopMin()
		if it == nil {
			t.Fatalf("PopMin() #%d returned nil", i)
		}
		if it.Value != want {
			t.Errorf("PopMin() #%d: expected %s, got %s", i, want, it.Value)
		}
	}

	if q.Len() != 0 {
		t.Errorf("Heap should be empty, but has %d items", q.Len())
	}
}

// TestEqualPriorityFIFO tests that items with the same priority keep their insertion order
func TestEqualPriorityFIFO(t *testing.T) {
	q := NewEpochHeap[int]()
	for i := 0; i < 100; i++ {
		q.Push(7, i)
	}
	for i := 0; i < 100; i++ {
		if it := q.PopMin(); it.Value != i {
			t.Fatalf("Expected %d, got %d", i, it.Value)
		}
	}
}

// TestPopUntil tests that only items up to the limit are removed
func TestPopUntil(t *testing.T) {
	q := NewEpochHeap[int]()
	for _, p := range []uint64{4, 1, 3, 2, 6, 5, 3} {
		q.Push(p, int(p))
	}

	var popped []uint64
	n := q.PopUntil(3, func(it *HeapItem[int]) {
		popped = append(popped, it.Priority)
	})

	if n != 4 {
		t.Errorf("Expected 4 popped items, got %d", n)
	}
	want := []uint64{1, 2, 3, 3}
	for i := range want {
		if popped[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, popped)
		}
	}

	if q.Len() != 3 {
		t.Errorf("Expected 3 remaining items, got %d", q.Len())
	}
	if it, _ := q.Peek(); it.Priority != 4 {
		t.Errorf("Expected next priority 4, got %d", it.Priority)
	}

	// nothing below the limit
	if n := q.PopUntil(3, func(*HeapItem[int]) { t.Error("unexpected pop") }); n != 0 {
		t.Errorf("Expected 0 popped items, got %d", n)
	}
}

// TestRandomOrder pushes random priorities and checks they come out sorted
func TestRandomOrder(t *testing.T) {
	q := NewEpochHeap[uint64]()
	rng := rand.New(rand.NewSource(42))

	const count = 1000
	priorities := make([]uint64, count)
	for i := range priorities {
		priorities[i] = uint64(rng.Intn(200))
		q.Push(priorities[i], priorities[i])
	}

	sort.Slice(priorities, func(i, j int) bool { return priorities[i] < priorities[j] })
	for i, want := range priorities {
		it := q.PopMin()
		if it.Priority != want {
			t.Fatalf("Item %d: expected priority %d, got %d", i, want, it.Priority)
		}
	}
}

// BenchmarkPushPop benchmarks push and pop operations
func BenchmarkPushPop(b *testing.B) {
	q := NewEpochHeap[int]()
	for i := 0; i < b.N; i++ {
		q.Push(uint64(i%64), i)
		if q.Len() > 128 {
			q.PopMin()
		}
	}
}
