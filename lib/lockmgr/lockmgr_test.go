package lockmgr

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"mutex":    KindMutex,
		"MUTEX":    KindMutex,
		"RwLock":   KindRWLock,
		"SPINLOCK": KindSpinlock,
		" rwsem ":  KindRWSem,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil {
			t.Errorf("ParseKind(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseKind(%q) = %s, expected %s", in, got, want)
		}
	}

	if _, err := ParseKind("seqlock"); err == nil {
		t.Error("Expected an error for an unknown kind")
	}
	if _, err := NewLock("seqlock"); err == nil {
		t.Error("Expected an error for an unknown kind")
	}
}

// TestMutualExclusion checks that writers exclude each other and readers
func TestMutualExclusion(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			lock, err := NewLock(kind)
			if err != nil {
				t.Fatalf("NewLock failed: %v", err)
			}
			if lock.Kind() != kind {
				t.Errorf("Expected kind %s, got %s", kind, lock.Kind())
			}

			const workers = 8
			const rounds = 2000

			var writers, readers atomic.Int32
			var violations atomic.Int32
			counter := 0

			var wg sync.WaitGroup
			wg.Add(workers)
			for w := 0; w < workers; w++ {
				go func(id int) {
					defer wg.Done()
					for i := 0; i < rounds; i++ {
						if (i+id)%4 == 0 {
							lock.Lock()
							if writers.Add(1) != 1 || readers.Load() != 0 {
								violations.Add(1)
							}
							counter++
							writers.Add(-1)
							lock.Unlock()
						} else {
							lock.RLock()
							readers.Add(1)
							if writers.Load() != 0 {
								violations.Add(1)
							}
							readers.Add(-1)
							lock.RUnlock()
						}
					}
				}(w)
			}
			wg.Wait()

			if v := violations.Load(); v != 0 {
				t.Errorf("Observed %d exclusion violations", v)
			}
			if counter != workers*rounds/4 {
				t.Errorf("Expected %d increments, got %d", workers*rounds/4, counter)
			}
		})
	}
}

// TestSharedMode checks that kinds with a shared mode admit concurrent readers
func TestSharedMode(t *testing.T) {
	for _, kind := range []Kind{KindRWLock, KindRWSem} {
		t.Run(string(kind), func(t *testing.T) {
			lock, _ := NewLock(kind)

			lock.RLock()
			acquired := make(chan struct{})
			go func() {
				lock.RLock()
				close(acquired)
				lock.RUnlock()
			}()

			select {
			case <-acquired:
			case <-time.After(time.Second):
				t.Fatal("Second reader was blocked by the first")
			}
			lock.RUnlock()
		})
	}
}

// TestWriterBlocksReaders checks that a held write lock blocks readers
func TestWriterBlocksReaders(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			lock, _ := NewLock(kind)

			lock.Lock()
			acquired := make(chan struct{})
			go func() {
				lock.RLock()
				close(acquired)
				lock.RUnlock()
			}()

			select {
			case <-acquired:
				t.Fatal("Reader acquired the lock while a writer held it")
			case <-time.After(20 * time.Millisecond):
			}

			lock.Unlock()
			select {
			case <-acquired:
			case <-time.After(time.Second):
				t.Fatal("Reader did not acquire the lock after the writer left")
			}
		})
	}
}

// TestSpinlockUnlockUnlocked checks the spinlock misuse assertion
func TestSpinlockUnlockUnlocked(t *testing.T) {
	lock, _ := NewLock(KindSpinlock)
	defer func() {
		if recover() == nil {
			t.Error("Expected a panic when unlocking an unlocked spinlock")
		}
	}()
	lock.Unlock()
}

// TestSpinlockSingleProcessor checks that a busy-waiting spinlock hands over
// to a sleeping holder when both share one processor
func TestSpinlockSingleProcessor(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	lock, _ := NewLock(KindSpinlock)
	lock.Lock()

	acquired := make(chan struct{})
	go func() {
		lock.Lock()
		close(acquired)
		lock.Unlock()
	}()

	// the waiter spins on the only processor while the holder sleeps
	time.Sleep(20 * time.Millisecond)
	lock.Unlock()

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("Spinning waiter never acquired the lock")
	}
}

func BenchmarkLock(b *testing.B) {
	for _, kind := range Kinds() {
		b.Run(string(kind), func(b *testing.B) {
			lock, _ := NewLock(kind)
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					if i%10 == 0 {
						lock.Lock()
						lock.Unlock()
					} else {
						lock.RLock()
						lock.RUnlock()
					}
					i++
				}
			})
		})
	}
}
