// Package cmd implements the command-line interface of ltree. It provides a
// hierarchical command structure for benchmarking store configurations.
//
// The package is organized into several subpackages:
//
//   - bench: the staged insert / search-erase benchmark and the perf
//     command that measures the throughput of single operations
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See ltree -help for a list of all commands.
package cmd
