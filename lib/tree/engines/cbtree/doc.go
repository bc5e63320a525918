// Package cbtree implements an ordered key-value tree with lock-free readers.
// It provides an implementation of the tree.OrderedTree interface in which
// searches never take a lock and never wait for writers, while writers are
// serialized by the caller.
//
// The package focuses on:
//   - Lock-free lookups (Find, FindGreaterThan, FindLessOrEqual, ForEach)
//   - Weight-balanced rebalancing that never exposes an inconsistent tree to readers
//   - Deferred node reclamation through epochs (util.EpochTracker)
//   - Bounded memory through a fixed-capacity node pool (util.NodePool)
//
// Key Components:
//
//   - cbTree: The tree structure implementing tree.OrderedTree. The root is an
//     atomic pointer, every node holds its children as atomic pointers as well.
//     Key and value of a node never change once the node is reachable by
//     readers, the subtree size is only ever read by the writer.
//
//   - writer: The state of one structural update. It carries the node
//     reservation and collects every node the update consumed.
//
//   - Invariant checks: Check (order and sizes), CheckBalance and Height
//     verify the tree while it is quiescent. Validate combines them.
//
// Internal Mechanisms:
//
//   - Weight Balance: No subtree may be more than four times as large as its
//     sibling. Updates rebalance bottom up, a violation is fixed with a single
//     or a double rotation.
//
//   - In Place vs. Copy: While unwinding the recursion of an insert or delete,
//     every ancestor is passed to mkBalanced. If no rotation is needed the node
//     is updated in place by storing exactly one child pointer. Rotations
//     never touch published nodes, they build the rotated subtree from fresh
//     nodes and retire the replaced ones. Removing the minimum of a subtree
//     (used when deleting a node with two children) always copies its path,
//     because the minimum must stay visible at its old position until the
//     rebuilt subtree is linked in.
//
//   - Publication: Every update ends with one atomic store of the root. Only
//     afterwards are the consumed nodes handed to the reclamation tracker, so
//     readers that start later can never reach them.
//
//   - Reclamation: Readers bracket every lookup with Enter/Exit of the epoch
//     tracker. Retired nodes are recycled into the pool once all readers that
//     may still hold them have left.
//
//   - Allocation Failure: Before touching the tree an update measures its
//     search path and reserves the worst case number of nodes (three per
//     level). If the pool cannot provide them the update fails with
//     tree.ErrAllocationFailure and the tree is unchanged.
//
// Poisoning:
//
//	With Options.PoisonRecycled every recycled node is marked and cleared.
//	Readers count each visit of a marked node, the counter is reported as
//	Metadata.UseAfterRecycle. Tests use this to detect premature recycling.
//
// Duplicate keys are rejected with tree.ErrDuplicateKey, Upsert replaces the
// value of an existing key by linking in a fresh node.
package cbtree
