// Package common provides the utilities shared by the command line tools of
// ltree.
//
// The package focuses on:
//   - Configuration of benchmark runs
//   - Custom logging implementation integrated with the dragonboat logger facade
//
// Key Components:
//
//   - BenchConfig: configuration of a benchmark run (store selection,
//     workload and output). StoreConfig converts it into the explicit
//     store.Config that is passed to the store constructor.
//
//   - Logger: custom ILogger implementation for the dragonboat logger
//     package. The library packages obtain their loggers with
//     logger.GetLogger(name), InitLoggers installs the factory and sets the
//     level of all of them.
package common
