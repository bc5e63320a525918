package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/ltree/lib/lockmgr"
	"github.com/ValentinKolb/ltree/lib/store"
	"github.com/ValentinKolb/ltree/lib/tree"
)

// --------------------------------------------------------------------------
// Benchmark configuration struct
// --------------------------------------------------------------------------

const (
	DefaultThreads    = 8
	DefaultOps        = 1000000
	DefaultDeleteRate = 20
)

// BenchConfig holds all parameters of a benchmark run
type BenchConfig struct {
	// store selection
	Lock            lockmgr.Kind
	Backend         tree.Implementation
	PoolCapacity    int
	ReclaimInterval time.Duration

	// workload
	Threads     int
	Ops         int
	DeleteRatio int // percentage of deletes in the search/erase stage (0-100)
	Seed        uint64

	// output
	CSVPath        string
	PrometheusPath string

	// Logging configuration
	LogLevel string
}

// StoreConfig returns the store configuration of the benchmark
func (c *BenchConfig) StoreConfig() store.Config {
	return store.Config{
		Lock:            c.Lock,
		Backend:         c.Backend,
		PoolCapacity:    c.PoolCapacity,
		ReclaimInterval: c.ReclaimInterval,
	}
}

// String returns a formatted string representation of the configuration
func (c *BenchConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	optional := func(value string) string {
		if value == "" {
			return "-"
		}
		return value
	}

	addSection("Store")
	addField("Lock", string(c.Lock))
	addField("Tree", string(c.Backend))
	if c.PoolCapacity > 0 {
		addField("Pool Capacity", fmt.Sprintf("%d nodes", c.PoolCapacity))
	} else {
		addField("Pool Capacity", "default")
	}
	if c.Backend == tree.ImplCBTree {
		addField("Reclaim Interval", c.ReclaimInterval.String())
	}

	addSection("Workload")
	addField("Threads", fmt.Sprintf("%d", c.Threads))
	addField("Operations", fmt.Sprintf("%d", c.Ops))
	addField("Delete Ratio", fmt.Sprintf("%d%%", c.DeleteRatio))
	addField("Seed", fmt.Sprintf("%d", c.Seed))

	addSection("Output")
	addField("CSV", optional(c.CSVPath))
	addField("Prometheus", optional(c.PrometheusPath))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
