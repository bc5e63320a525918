// Package store provides a uniform interface for ordered key-value storage
// with selectable concurrency control and unified error handling.
// It serves as an abstraction layer over the tree implementations in lib/tree,
// binding one lock kind and one backend when the store is created.
//
// The package focuses on:
//   - A unified interface (IStore) for key-value operations across different backends
//   - Explicit configuration (Config) instead of process wide parameters
//
// Key Components:
//
//   - IStore Interface: The core abstraction defining the access control pairs
//     (ReadAcquire/ReadRelease, WriteAcquire/WriteRelease) and the operations
//     of a store. Applications can switch between lock kinds and backends
//     without code changes.
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     and descriptive messages. Errors created from tree errors unwrap to the
//     tree sentinels (tree.ErrDuplicateKey, tree.ErrAllocationFailure).
//
// Implementations:
//
//   - Local Store (lstore): an in-process store that selects its read and
//     write strategy once at construction. Readers of the concurrent tree take
//     no lock at all, every other combination maps the access control pairs to
//     the configured lock.
//     Available in the "github.com/ValentinKolb/ltree/lib/store/lstore" package.
package store
