// Package util provides the building blocks shared by the tree implementations
// that satisfy the tree.OrderedTree interface.
//
// The package contains:
//   - nodepool: A fixed-capacity node allocator with reservations, so multi-node
//     updates either get all their nodes up front or fail without touching the tree
//   - epoch: Epoch based reclamation for lock-free readers. Retired nodes are
//     recycled only after every reader that could observe them has left
//   - epochheap: A priority queue ordered by retirement epoch
//   - lockfreempsc: A lock-free Multi-Producer Single-Consumer (MPSC) queue that
//     carries retired nodes from writers to the reclaimer without blocking
//   - statistics: Summary statistics and a DepthHistogram for tree shape reporting
//   - functions: Seeds and key generators for tests and benchmarks
//
// This package is particularly useful for:
//   - Tree developers implementing the OrderedTree interface
//   - Benchmark and test code that needs reproducible key sets
package util
