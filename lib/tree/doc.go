// Package tree provides a standardized interface for ordered key-value trees
// that map unsigned integer keys (offsets) to owned string values.
// It defines the OrderedTree interface that allows the store package to drive
// different tree implementations, each with its own concurrency model,
// through a single API.
//
// The package focuses on:
//   - A unified interface for ordered key-value operations
//   - Feature discovery through capability flags
//   - A small, shared error taxonomy
//   - Standardized metadata reporting
//
// Key Components:
//
//   - OrderedTree Interface: The core interface that all tree implementations must satisfy.
//     It provides write operations (Insert, Upsert, Delete), queries (Find,
//     FindGreaterThan, FindLessOrEqual, ForEach, Len), teardown (Destroy) and
//     metadata retrieval (GetInfo).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     advertise through the SupportsFeature method. FeatureLockFreeReads is the
//     important one: it tells the caller that readers never have to take a lock
//     because the implementation protects them internally.
//
//   - Implementation Identifiers: The Implementation type provides string constants
//     for the tree backends ("ordtree" and "cbtree").
//
//   - Errors: ErrAllocationFailure (node pool exhausted) and ErrDuplicateKey.
//     A missing key is never an error, it is reported through a boolean result.
//
// Note on Concurrency:
//   - Writers are never concurrent. Every implementation assumes that Insert,
//     Upsert, Delete and Destroy are serialized by the caller.
//   - Readers of implementations without FeatureLockFreeReads must be
//     serialized against writers by the caller as well (usually with the
//     shared mode of a reader/writer lock).
//
// Note on Duplicate Keys:
//
//	All implementations follow the same policy: inserting an existing key fails
//	with ErrDuplicateKey and leaves the stored value untouched. Callers that
//	want overwrite semantics use Upsert.
//
// Related Packages:
//
// The engines/cbtree package (github.com/ValentinKolb/ltree/lib/tree/engines/cbtree)
// implements a weight-balanced tree with lock-free readers, copy-on-write
// rotations and epoch based node reclamation.
//
// The engines/ordtree package (github.com/ValentinKolb/ltree/lib/tree/engines/ordtree)
// implements a conventional ordered tree without any concurrency metadata,
// meant to be guarded by one external lock.
//
// The util package (github.com/ValentinKolb/ltree/lib/tree/util) provides the
// node pool, the epoch based reclamation tracker and supporting data structures.
//
// The testing package (github.com/ValentinKolb/ltree/lib/tree/testing) provides
// standardized tests and benchmarks for tree implementations.
package tree
