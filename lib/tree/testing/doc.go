// Package testing provides standardised tests and benchmarks for
// tree implementations that satisfy the tree.OrderedTree interface.
//
// The package contains:
//   - tree_testing: A comprehensive test suite for validating conformance to the
//     OrderedTree contract (ordering, duplicate policy, neighbour queries,
//     teardown accounting and, for trees with lock-free readers, concurrent
//     readers against a single writer)
//   - tree_benchmarks: Performance tests for measuring throughput of common tree operations
//
// Trees that implement tree.Validator get their invariants checked after
// every test that modifies them. Trees that implement io.Closer are closed
// at the end of every test, all others are destroyed.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() tree.OrderedTree {
//		return NewMyTree()
//	}
//
//	// Running the standard test suite
//	treetesting.RunTreeTests(t, "MyTree", factory)
//
//	// Running performance benchmarks
//	treetesting.RunTreeBenchmarks(b, "MyTree", factory)
package testing
