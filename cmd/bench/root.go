package bench

import (
	"fmt"

	"github.com/ValentinKolb/ltree/cmd/util"
	"github.com/ValentinKolb/ltree/lib/common"
	"github.com/ValentinKolb/ltree/lib/store/lstore"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log = logger.GetLogger("bench")

	benchConfig *common.BenchConfig

	// BenchCommands represents the bench command group. Run without a
	// subcommand it executes the staged insert / search-erase benchmark.
	BenchCommands = &cobra.Command{
		Use:   "bench",
		Short: "Benchmark a store configuration",
		Long: `Benchmark a store configuration in two stages.

The first stage inserts ops keys, split evenly across all workers. The second
stage performs ops random searches and erases (the share of erases is set with
--del-ratio). All workers start and finish every stage together, the duration
of each stage is reported.

The configuration can be set via command line flags or environment variables.
The format of the environment variables is LTREE_<flag> (e.g. LTREE_DEL_RATIO=50)`,
		PersistentPreRunE: processConfig,
		RunE:              runStaged,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add store and workload flags
	util.SetupStoreFlags(BenchCommands)

	key := "prometheus"
	BenchCommands.Flags().String(key, "", util.WrapString("Optional path to save the collected metrics in the Prometheus text format"))

	// Add subcommands
	BenchCommands.AddCommand(perfCmd)
}

// processConfig reads the configuration from the command line flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	benchConfig = util.GetBenchConfig()
	return nil
}

// runStaged runs the staged benchmark and reports the results
func runStaged(_ *cobra.Command, _ []string) error {
	fmt.Println("Staged benchmark of an ltree store")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(benchConfig.String())

	s, err := lstore.NewLocalStore(benchConfig.StoreConfig())
	if err != nil {
		return err
	}

	r := newRunner(benchConfig, s)
	res := r.run()

	printResult(res)
	fmt.Println()
	printTreeInfo(s.Info())

	// teardown, like after every run
	if err := s.Destroy(nil); err != nil {
		log.Errorf("failed to destroy store: %v", err)
	}

	if path := benchConfig.CSVPath; path != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", path)
		if err := writeStagedCSV(path, benchConfig, res); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	if path := benchConfig.PrometheusPath; path != "" {
		fmt.Printf("\nExporting metrics: %s\n", path)
		if err := writePrometheus(path, r.metrics); err != nil {
			return fmt.Errorf("failed to export metrics: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}
