package bench

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/ltree/cmd/util"
	"github.com/ValentinKolb/ltree/lib/common"
	"github.com/ValentinKolb/ltree/lib/store"
	"github.com/ValentinKolb/ltree/lib/store/lstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Throughput of single operations for one store configuration",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeySpread = 100000
	perfSkip      = make([]string, 0)
)

// perfTest is one throughput benchmark
type perfTest struct {
	name string
	fn   func(b *testing.B, s store.IStore)
}

var perfTests = []perfTest{
	{"insert", benchInsert},
	{"search", benchSearch},
	{"search-not", benchSearchNot},
	{"erase", benchErase},
	{"mixed", benchMixed},
}

func init() {
	// add flags
	key := "skip"
	perfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. insert,erase)"))
	key = "keys"
	perfCmd.Flags().Int(key, perfKeySpread, util.WrapString("How many different keys to use for the search and mixed tests"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for ltree stores")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(benchConfig.String())
	fmt.Printf("Keys: %d\n", perfKeySpread)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	for _, pt := range perfTests {
		if shouldSkip(pt.name) {
			results[pt.name] = testing.BenchmarkResult{}
			printPerfResult(pt.name, results[pt.name])
			continue
		}

		var runErr error
		result := testing.Benchmark(func(b *testing.B) {
			// every run gets a fresh store
			s, err := lstore.NewLocalStore(benchConfig.StoreConfig())
			if err != nil {
				runErr = err
				return
			}
			pt.fn(b, s)
			b.StopTimer()
			if err := s.Destroy(nil); err != nil {
				log.Errorf("(%s) - error destroying store: %v", pt.name, err)
			}
		})
		if runErr != nil {
			return runErr
		}

		results[pt.name] = result
		printPerfResult(pt.name, result)
	}

	// Write results to csv is specified
	if csvPath := benchConfig.CSVPath; csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writePerfCSV(csvPath, results, benchConfig); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

// fill inserts the keys 1..n. It stops early if the store is full.
func fill(s store.IStore, n int) {
	s.WriteAcquire()
	defer s.WriteRelease()
	for k := 1; k <= n; k++ {
		if err := s.Insert(uint64(k), dummyValue); err != nil {
			log.Warningf("prefill stopped at key %d: %v", k, err)
			return
		}
	}
}

// reportFailures logs the number of failed operations of a benchmark
func reportFailures(test string, failures *atomic.Int64) {
	if n := failures.Load(); n > 0 {
		log.Errorf("(%s) - %d operations failed", test, n)
	}
}

// newRand creates a random number generator for one benchmark goroutine
func newRand(seed *atomic.Int64) *rand.Rand {
	return rand.New(rand.NewSource(int64(benchConfig.Seed) + seed.Add(1)))
}

func benchInsert(b *testing.B, s store.IStore) {
	var next atomic.Uint64
	var failures atomic.Int64
	defer reportFailures("insert", &failures)

	b.SetParallelism(benchConfig.Threads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := next.Add(1)
			s.WriteAcquire()
			err := s.Insert(key, dummyValue)
			s.WriteRelease()
			if err != nil {
				failures.Add(1)
			}
		}
	})
}

func benchSearch(b *testing.B, s store.IStore) {
	fill(s, perfKeySpread)
	var seed atomic.Int64
	var failures atomic.Int64
	defer reportFailures("search", &failures)

	b.SetParallelism(benchConfig.Threads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		rng := newRand(&seed)
		for pb.Next() {
			key := uint64(rng.Intn(perfKeySpread)) + 1
			s.ReadAcquire()
			_, found := s.Search(key)
			s.ReadRelease()
			if !found {
				failures.Add(1)
			}
		}
	})
}

func benchSearchNot(b *testing.B, s store.IStore) {
	fill(s, perfKeySpread)
	var seed atomic.Int64

	b.SetParallelism(benchConfig.Threads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		rng := newRand(&seed)
		for pb.Next() {
			key := uint64(perfKeySpread+rng.Intn(perfKeySpread)) + 1
			s.ReadAcquire()
			s.Search(key)
			s.ReadRelease()
		}
	})
}

func benchErase(b *testing.B, s store.IStore) {
	fill(s, b.N)
	var next atomic.Uint64
	var failures atomic.Int64
	defer reportFailures("erase", &failures)

	b.SetParallelism(benchConfig.Threads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := next.Add(1)
			s.WriteAcquire()
			_, err := s.Erase(key)
			s.WriteRelease()
			if err != nil {
				failures.Add(1)
			}
		}
	})
}

// benchMixed erases and upserts del-ratio percent of the operations (half
// each), the rest are searches
func benchMixed(b *testing.B, s store.IStore) {
	fill(s, perfKeySpread)
	var seed atomic.Int64
	var failures atomic.Int64
	defer reportFailures("mixed", &failures)

	b.SetParallelism(benchConfig.Threads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		rng := newRand(&seed)
		for pb.Next() {
			key := uint64(rng.Intn(perfKeySpread)) + 1
			var err error
			switch op := rng.Intn(200); {
			case op < benchConfig.DeleteRatio:
				s.WriteAcquire()
				_, err = s.Erase(key)
				s.WriteRelease()
			case op < 2*benchConfig.DeleteRatio:
				s.WriteAcquire()
				_, err = s.Upsert(key, dummyValue)
				s.WriteRelease()
			default:
				s.ReadAcquire()
				s.Search(key)
				s.ReadRelease()
			}
			if err != nil {
				failures.Add(1)
			}
		}
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// printPerfResult prints the result of a benchmark test in a formatted way
func printPerfResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := max(float64(result.NsPerOp()), 1) // prevent division by zero

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSecond(nsPerOp))
}

// writePerfCSV writes benchmark results to a CSV file
func writePerfCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.BenchConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Lock", "Tree", "Threads", "Keys", "DeleteRatio", "PoolCapacity",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results in a stable order
	for _, pt := range perfTests {
		result, ok := results[pt.name]
		if !ok {
			continue
		}

		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = max(float64(result.NsPerOp()), 1)
			opsPerSec = opsPerSecond(nsPerOp)
		}

		row := []string{
			pt.name,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			string(config.Lock),
			string(config.Backend),
			strconv.Itoa(config.Threads),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(config.DeleteRatio),
			strconv.Itoa(config.PoolCapacity),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", pt.name, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
