package bench

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/ValentinKolb/ltree/lib/barrier"
	"github.com/ValentinKolb/ltree/lib/common"
	"github.com/ValentinKolb/ltree/lib/store"
	vm "github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rcrowley/go-metrics"
)

const (
	// dummyValue is the value stored for every key
	dummyValue = "dummy_data"

	stageInsert      = "insert"
	stageSearchErase = "search/erase"
)

// StageResult is the duration of one stage, measured by the coordinator
type StageResult struct {
	Name     string
	Duration time.Duration
	Ops      int
}

// WorkerResult holds the counters and latency timers of one worker.
// Every worker owns its timers, so recording a latency never contends.
type WorkerResult struct {
	ID int

	Inserted   int64 // successful inserts
	Duplicates int64 // inserts of a present key
	Failed     int64 // inserts that failed for other reasons (pool exhausted)
	Searches   int64
	Hits       int64 // searches that found their key
	Erases     int64
	Erased     int64 // erases that found their key

	Insert metrics.Timer
	Search metrics.Timer
	Erase  metrics.Timer
}

// Result is the outcome of a staged benchmark
type Result struct {
	Stages  []StageResult
	Workers []*WorkerResult // ordered by worker id
}

// Totals sums the counters of all workers
func (r *Result) Totals() WorkerResult {
	var t WorkerResult
	t.ID = -1
	for _, w := range r.Workers {
		t.Inserted += w.Inserted
		t.Duplicates += w.Duplicates
		t.Failed += w.Failed
		t.Searches += w.Searches
		t.Hits += w.Hits
		t.Erases += w.Erases
		t.Erased += w.Erased
	}
	return t
}

// Latency aggregates the timer selected by pick over all workers. The mean
// is weighted by the number of samples, the percentile is the maximum of the
// per worker percentiles.
func (r *Result) Latency(pick func(*WorkerResult) metrics.Timer, percentile float64) (count int64, mean, p time.Duration) {
	var sum float64
	for _, w := range r.Workers {
		t := pick(w).Snapshot()
		count += t.Count()
		// the sample only keeps a reservoir, so Sum would miss values
		sum += t.Mean() * float64(t.Count())
		if q := time.Duration(t.Percentile(percentile)); q > p {
			p = q
		}
	}
	if count > 0 {
		mean = time.Duration(sum / float64(count))
	}
	return count, mean, p
}

// WorkerRates returns the rate of every worker in operations per second of
// time spent inside store operations, ordered by worker id.
func (r *Result) WorkerRates() []float64 {
	rates := make([]float64, 0, len(r.Workers))
	for _, w := range r.Workers {
		var busy float64
		var ops int64
		for _, t := range []metrics.Timer{w.Insert, w.Search, w.Erase} {
			s := t.Snapshot()
			busy += s.Mean() * float64(s.Count())
			ops += s.Count()
		}
		if busy <= 0 {
			rates = append(rates, 0)
			continue
		}
		rates = append(rates, float64(ops)/(busy/float64(time.Second)))
	}
	return rates
}

// runner executes the staged benchmark on one store
type runner struct {
	conf  *common.BenchConfig
	store store.IStore

	stageOne *barrier.Barrier
	stageTwo *barrier.Barrier
	finish   *barrier.Barrier

	results *xsync.MapOf[int, *WorkerResult]
	metrics *vm.Set

	mu     sync.Mutex
	stages []StageResult
}

func newRunner(conf *common.BenchConfig, s store.IStore) *runner {
	return &runner{
		conf:     conf,
		store:    s,
		stageOne: barrier.New(conf.Threads),
		stageTwo: barrier.New(conf.Threads),
		finish:   barrier.New(conf.Threads),
		results:  xsync.NewMapOf[int, *WorkerResult](),
		metrics:  vm.NewSet(),
	}
}

// run starts all workers and waits until they finished. Worker 0 runs on
// the calling goroutine and acts as the coordinator that times the stages.
func (r *runner) run() *Result {
	var wg sync.WaitGroup
	for id := 1; id < r.conf.Threads; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.worker(id)
		}(id)
	}
	r.worker(0)
	wg.Wait()

	res := &Result{Stages: r.stages}
	r.results.Range(func(_ int, w *WorkerResult) bool {
		res.Workers = append(res.Workers, w)
		return true
	})
	sort.Slice(res.Workers, func(i, j int) bool { return res.Workers[i].ID < res.Workers[j].ID })

	r.export(res)
	return res
}

// share returns the first key offset and the number of operations of a
// worker. The last worker takes the remainder.
func (r *runner) share(id int) (base uint64, ops int) {
	per := r.conf.Ops / r.conf.Threads
	ops = per
	if id == r.conf.Threads-1 {
		ops += r.conf.Ops % r.conf.Threads
	}
	return uint64(id * per), ops
}

func (r *runner) record(name string, d time.Duration, ops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, StageResult{Name: name, Duration: d, Ops: ops})
	log.Infof("%s stage took %d ms", name, d.Milliseconds())
}

// worker runs both stages.
//
// First stage: insert ops keys, each worker inserts the keys of its share.
// Second stage: random searches and erases on random keys in [1, ops].
// Erases are only chosen while the worker's erase budget (ops * del-ratio /
// 100) is not used up.
func (r *runner) worker(id int) {
	base, ops := r.share(id)
	deletesRemaining := ops * r.conf.DeleteRatio / 100
	rng := rand.New(rand.NewSource(int64(r.conf.Seed) + int64(id)))

	w := &WorkerResult{
		ID:     id,
		Insert: metrics.NewTimer(),
		Search: metrics.NewTimer(),
		Erase:  metrics.NewTimer(),
	}
	defer w.Insert.Stop()
	defer w.Search.Stop()
	defer w.Erase.Stop()

	var start time.Time

	// Begin first stage in a coordinated manner
	r.stageOne.Wait()
	if id == 0 {
		start = time.Now()
	}

	for i := 0; i < ops; i++ {
		key := base + uint64(i) + 1
		t0 := time.Now()
		r.store.WriteAcquire()
		err := r.store.Insert(key, dummyValue)
		r.store.WriteRelease()
		w.Insert.UpdateSince(t0)

		switch {
		case err == nil:
			w.Inserted++
		case store.IsCode(err, store.RetCDuplicateKey):
			w.Duplicates++
		default:
			if w.Failed == 0 {
				log.Warningf("worker %d: insert of key %d failed: %v", id, key, err)
			}
			w.Failed++
		}
	}

	// Synchronize to start second stage, the coordinator also times things
	r.stageTwo.Wait()
	if id == 0 {
		r.record(stageInsert, time.Since(start), r.conf.Ops)
		start = time.Now()
	}

	for i := 0; i < ops; i++ {
		erase := rng.Intn(2) == 1
		key := uint64(rng.Intn(r.conf.Ops)) + 1

		t0 := time.Now()
		if erase && deletesRemaining > 0 {
			deletesRemaining--
			r.store.WriteAcquire()
			found, err := r.store.Erase(key)
			r.store.WriteRelease()
			w.Erase.UpdateSince(t0)

			w.Erases++
			if err != nil {
				log.Warningf("worker %d: erase of key %d failed: %v", id, key, err)
			} else if found {
				w.Erased++
			}
		} else {
			r.store.ReadAcquire()
			_, found := r.store.Search(key)
			r.store.ReadRelease()
			w.Search.UpdateSince(t0)

			w.Searches++
			if found {
				w.Hits++
			}
		}
	}

	// Synchronize to complete together
	r.finish.Wait()
	if id == 0 {
		r.record(stageSearchErase, time.Since(start), r.conf.Ops)
	}

	r.results.Store(id, w)
}

// export publishes the result in the metrics set
func (r *runner) export(res *Result) {
	labels := fmt.Sprintf(`lock=%q,tree=%q,threads="%d"`, r.conf.Lock, r.conf.Backend, r.conf.Threads)

	for _, st := range res.Stages {
		name := fmt.Sprintf(`ltree_stage_duration_seconds{%s,stage=%q}`, labels, st.Name)
		r.metrics.GetOrCreateGauge(name, func(d time.Duration) func() float64 {
			return func() float64 { return d.Seconds() }
		}(st.Duration))
	}

	counter := func(op, result string, n int64) {
		name := fmt.Sprintf(`ltree_operations_total{%s,op=%q,result=%q}`, labels, op, result)
		r.metrics.GetOrCreateCounter(name).Add(int(n))
	}
	t := res.Totals()
	counter("insert", "ok", t.Inserted)
	counter("insert", "duplicate", t.Duplicates)
	counter("insert", "failed", t.Failed)
	counter("search", "hit", t.Hits)
	counter("search", "miss", t.Searches-t.Hits)
	counter("erase", "found", t.Erased)
	counter("erase", "missing", t.Erases-t.Erased)

	latency := func(op string, pick func(*WorkerResult) metrics.Timer) {
		_, mean, p99 := res.Latency(pick, 0.99)
		r.metrics.GetOrCreateGauge(fmt.Sprintf(`ltree_latency_seconds{%s,op=%q,stat="mean"}`, labels, op),
			func() float64 { return mean.Seconds() })
		r.metrics.GetOrCreateGauge(fmt.Sprintf(`ltree_latency_seconds{%s,op=%q,stat="p99"}`, labels, op),
			func() float64 { return p99.Seconds() })
	}
	latency("insert", func(w *WorkerResult) metrics.Timer { return w.Insert })
	latency("search", func(w *WorkerResult) metrics.Timer { return w.Search })
	latency("erase", func(w *WorkerResult) metrics.Timer { return w.Erase })
}
