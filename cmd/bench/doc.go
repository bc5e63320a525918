// Package bench implements the benchmark commands of ltree.
//
// The staged benchmark (ltree bench) runs a fixed number of worker
// goroutines against one shared store. All workers pass a barrier before and
// after every stage, worker 0 measures the stage durations:
//
//  1. Insert: ops keys are inserted, every worker inserts a contiguous share
//     (the last worker takes the remainder) under the write permission.
//  2. Search/Erase: every worker performs its share of operations on random
//     keys in [1, ops]. A coin flip picks erase or search, erases are only
//     performed while the worker's erase budget (del-ratio percent of its
//     share) lasts.
//
// Per operation latencies are recorded in go-metrics timers owned by the
// workers. Stage durations, operation counters and latencies can be exported
// in the Prometheus text format (VictoriaMetrics metrics set) and as CSV.
//
// The perf subcommand (ltree bench perf) measures the throughput of single
// operation types with testing.Benchmark, each on a fresh store.
package bench
