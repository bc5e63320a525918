package bench

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ValentinKolb/ltree/lib/common"
	"github.com/ValentinKolb/ltree/lib/store"
	treeutil "github.com/ValentinKolb/ltree/lib/tree/util"
	vm "github.com/VictoriaMetrics/metrics"
	"github.com/rcrowley/go-metrics"
)

// --------------------------------------------------------------------------
// Console output
// --------------------------------------------------------------------------

// printResult prints the stage durations and latencies of a staged run
func printResult(res *Result) {
	fmt.Println("Stages:")
	for _, st := range res.Stages {
		opsPerSec := float64(st.Ops) / max(st.Duration.Seconds(), 1e-9)
		fmt.Printf("  %-20s%d ms\t%.0f ops/sec\n", st.Name, st.Duration.Milliseconds(), opsPerSec)
	}

	t := res.Totals()
	fmt.Println()
	fmt.Println("Operations:")
	fmt.Printf("  %-20s%d ok, %d duplicate, %d failed\n", "insert", t.Inserted, t.Duplicates, t.Failed)
	fmt.Printf("  %-20s%d (%d hits)\n", "search", t.Searches, t.Hits)
	fmt.Printf("  %-20s%d (%d found)\n", "erase", t.Erases, t.Erased)

	fmt.Println()
	fmt.Println("Latency:")
	printLatency(res, "insert", func(w *WorkerResult) metrics.Timer { return w.Insert })
	printLatency(res, "search", func(w *WorkerResult) metrics.Timer { return w.Search })
	printLatency(res, "erase", func(w *WorkerResult) metrics.Timer { return w.Erase })

	// a fair lock keeps all workers at a similar rate
	dist := treeutil.NewDistributionStats(res.WorkerRates())
	fmt.Println()
	fmt.Println("Workers:")
	fmt.Printf("  %-20s%.0f ops/sec (min %.0f, max %.0f)\n", "rate", dist.Mean, dist.Min, dist.Max)
	fmt.Printf("  %-20s%.2f\n", "fairness", dist.DistributionQuality)
}

func printLatency(res *Result, op string, pick func(*WorkerResult) metrics.Timer) {
	count, mean, p99 := res.Latency(pick, 0.99)
	if count == 0 {
		fmt.Printf("  %-20sskipped\n", op)
		return
	}
	fmt.Printf("  %-20smean %s\tp99 %s\t(%d samples)\n", op, mean, p99, count)
}

// printTreeInfo prints the state of the tree after the run
func printTreeInfo(info store.Info) {
	fmt.Println("Tree:")
	fmt.Printf("  %-20s%s\n", "type", info.Tree.TreeType)
	fmt.Printf("  %-20s%d\n", "size", info.Tree.Size)
	fmt.Printf("  %-20s%d\n", "height", info.Tree.Height)
	fmt.Printf("  %-20s%d in use, %d allocated, %d recycled\n", "pool",
		info.Tree.Pool.InUse, info.Tree.Pool.Allocated, info.Tree.Pool.Recycled)
	if info.Tree.Metadata != nil {
		fmt.Printf("  %-20s%+v\n", "metadata", info.Tree.Metadata)
	}
}

// --------------------------------------------------------------------------
// Export
// --------------------------------------------------------------------------

// writeStagedCSV writes one row per stage
func writeStagedCSV(csvPath string, conf *common.BenchConfig, res *Result) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	// Write header
	header := []string{
		"Stage", "DurationMs", "Ops", "OpsPerSec",
		"Lock", "Tree", "Threads", "TotalOps", "DeleteRatio", "PoolCapacity",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, st := range res.Stages {
		opsPerSec := float64(st.Ops) / max(st.Duration.Seconds(), 1e-9)
		row := []string{
			st.Name,
			strconv.FormatInt(st.Duration.Milliseconds(), 10),
			strconv.Itoa(st.Ops),
			fmt.Sprintf("%.0f", opsPerSec),
			string(conf.Lock),
			string(conf.Backend),
			strconv.Itoa(conf.Threads),
			strconv.Itoa(conf.Ops),
			strconv.Itoa(conf.DeleteRatio),
			strconv.Itoa(conf.PoolCapacity),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for stage %s: %v", st.Name, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// writePrometheus writes the metrics set in the Prometheus text format
func writePrometheus(path string, set *vm.Set) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %v", err)
	}
	defer file.Close()

	set.WritePrometheus(file)
	return nil
}

// opsPerSecond converts a duration per operation into a rate
func opsPerSecond(nsPerOp float64) float64 {
	return 1.0 / (max(nsPerOp, 1) / float64(time.Second))
}
