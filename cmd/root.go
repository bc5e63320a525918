package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/ValentinKolb/ltree/cmd/bench"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "ltree",
		Short: "lock strategies vs. a lock-free read tree",
		Long: fmt.Sprintf(`ltree (v%s)

An in-memory ordered key-value store written in Go. A store combines one
lock (mutex, rwlock, spinlock, rwsem) with one tree: a B-tree that is fully
guarded by the lock, or a weight-balanced tree whose readers never take a
lock. The bench commands compare the combinations.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ltree",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ltree v%s (%s, %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(bench.BenchCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
