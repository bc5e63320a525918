package util

import (
	"strings"

	"github.com/ValentinKolb/ltree/lib/common"
	"github.com/ValentinKolb/ltree/lib/lockmgr"
	"github.com/ValentinKolb/ltree/lib/tree"
	treeUtil "github.com/ValentinKolb/ltree/lib/tree/util"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

var log = logger.GetLogger("bench")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the flags that select and size the store to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "lock"
	cmd.PersistentFlags().String(key, string(lockmgr.KindSpinlock), WrapString("Lock used by the store (mutex, rwlock, spinlock, rwsem)"))

	key = "tree"
	cmd.PersistentFlags().String(key, string(tree.ImplOrdTree), WrapString("Tree used by the store (ordtree, cbtree). The names RB_TREE and RCU_TREE are accepted as well"))

	key = "threads"
	cmd.PersistentFlags().Int(key, common.DefaultThreads, WrapString("Number of worker goroutines"))

	key = "ops"
	cmd.PersistentFlags().Int(key, common.DefaultOps, WrapString("Number of operations to perform on each stage"))

	key = "del-ratio"
	cmd.PersistentFlags().Int(key, common.DefaultDeleteRate, WrapString("Percentage of deletes in the search/erase stage (0-100)"))

	key = "pool-capacity"
	cmd.PersistentFlags().Int(key, 0, WrapString("Maximum number of live tree nodes (0 = tree default)"))

	key = "reclaim-interval"
	cmd.PersistentFlags().Duration(key, treeUtil.DefaultReclaimInterval, WrapString("Interval of the node reclaimer of the cbtree"))

	key = "seed"
	cmd.PersistentFlags().Uint64(key, 0, WrapString("Seed for the random number generators of the workers (0 = random)"))

	key = "csv"
	cmd.PersistentFlags().String(key, "", WrapString("Optional path to save benchmark results as CSV"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("ltree")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetBenchConfig reads the benchmark configuration from viper.
//
// Invalid values never abort the run: an unknown lock falls back to spinlock,
// an unknown tree to ordtree and a delete ratio above 100 to 20. Every
// fallback is logged as an error.
func GetBenchConfig() *common.BenchConfig {
	conf := &common.BenchConfig{
		PoolCapacity:    viper.GetInt("pool-capacity"),
		ReclaimInterval: viper.GetDuration("reclaim-interval"),
		Threads:         viper.GetInt("threads"),
		Ops:             viper.GetInt("ops"),
		DeleteRatio:     viper.GetInt("del-ratio"),
		Seed:            viper.GetUint64("seed"),
		CSVPath:         viper.GetString("csv"),
		PrometheusPath:  viper.GetString("prometheus"),
		LogLevel:        viper.GetString("log-level"),
	}

	lock, err := lockmgr.ParseKind(viper.GetString("lock"))
	if err != nil {
		log.Errorf("invalid lock type string, falling back to default %s (%v)", lockmgr.KindSpinlock, err)
		lock = lockmgr.KindSpinlock
	}
	conf.Lock = lock

	backend, err := tree.ParseImplementation(viper.GetString("tree"))
	if err != nil {
		log.Errorf("invalid tree type string, falling back to default %s (%v)", tree.ImplOrdTree, err)
		backend = tree.ImplOrdTree
	}
	conf.Backend = backend

	if conf.DeleteRatio < 0 || conf.DeleteRatio > 100 {
		log.Errorf("invalid delete ratio %d, defaulting to %d%%", conf.DeleteRatio, common.DefaultDeleteRate)
		conf.DeleteRatio = common.DefaultDeleteRate
	}
	if conf.Threads <= 0 {
		log.Errorf("invalid number of threads %d, defaulting to %d", conf.Threads, common.DefaultThreads)
		conf.Threads = common.DefaultThreads
	}
	if conf.Ops <= 0 {
		log.Errorf("invalid number of operations %d, defaulting to %d", conf.Ops, common.DefaultOps)
		conf.Ops = common.DefaultOps
	}
	if conf.ReclaimInterval <= 0 {
		conf.ReclaimInterval = treeUtil.DefaultReclaimInterval
	}
	if conf.Seed == 0 {
		conf.Seed = treeUtil.GenerateSeed()
	}

	return conf
}
