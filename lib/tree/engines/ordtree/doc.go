// Package ordtree implements a conventional ordered key-value tree without
// any internal synchronization. It is the backend of the explicit lock
// strategy: the store guards every read with the shared mode and every write
// with the exclusive mode of one lock.
//
// Entries are kept in a B-tree (github.com/google/btree). Each entry is an
// item drawn from a fixed-capacity util.NodePool, so the tree reports
// tree.ErrAllocationFailure exactly like the concurrent tree once the pool is
// exhausted. Because every access happens under the caller's lock, removed
// items go back to the pool immediately.
//
// Duplicate keys are rejected with tree.ErrDuplicateKey, Upsert overwrites.
package ordtree
