package cbtree

import (
	"github.com/cockroachdb/errors"
)

// Check verifies the strict invariants of the published tree: keys are in
// binary search tree order, every size field matches its subtree and the
// entry count matches the root. It must only be called while no writer is active.
func (t *cbTree) Check() error {
	root := t.root.Load()
	if _, err := checkOrder(root, nil, nil); err != nil {
		return err
	}
	if n := nodeSize(root); n != t.Len() {
		return errors.Newf("root size %d does not match entry count %d", n, t.Len())
	}
	return nil
}

// checkOrder verifies order and sizes of the subtree n, all keys must be in (lo, hi)
func checkOrder(n *node, lo, hi *uint64) (int, error) {
	if n == nil {
		return 0, nil
	}
	if n.dead.Load() {
		return 0, errors.Newf("recycled node reachable from the root")
	}
	if lo != nil && n.key <= *lo {
		return 0, errors.Newf("key %d is not greater than %d", n.key, *lo)
	}
	if hi != nil && n.key >= *hi {
		return 0, errors.Newf("key %d is not less than %d", n.key, *hi)
	}

	key := n.key
	ls, err := checkOrder(n.left.Load(), lo, &key)
	if err != nil {
		return 0, err
	}
	rs, err := checkOrder(n.right.Load(), &key, hi)
	if err != nil {
		return 0, err
	}

	if n.size != 1+ls+rs {
		return 0, errors.Newf("size of key %d is %d, subtree has %d nodes", n.key, n.size, 1+ls+rs)
	}
	return n.size, nil
}

// CheckBalance verifies the weight balance of every node: no subtree holds
// more than weight times the nodes of its sibling plus two, the room one
// pending update may leave behind in a tiny subtree. slack is added to that bound.
func (t *cbTree) CheckBalance(slack int) error {
	var walk func(n *node) error
	walk = func(n *node) error {
		if n == nil {
			return nil
		}
		ln, rn := nodeSize(n.left.Load()), nodeSize(n.right.Load())
		small, big := min(ln, rn), max(ln, rn)
		if big > weight*small+2+slack {
			return errors.Newf("key %d is out of balance (%d vs %d)", n.key, ln, rn)
		}
		if err := walk(n.left.Load()); err != nil {
			return err
		}
		return walk(n.right.Load())
	}
	return walk(t.root.Load())
}

// Height returns the number of nodes on the longest root to leaf path
func (t *cbTree) Height() int {
	var height func(n *node) int
	height = func(n *node) int {
		if n == nil {
			return 0
		}
		return 1 + max(height(n.left.Load()), height(n.right.Load()))
	}
	return height(t.root.Load())
}

// Validate implements tree.Validator
func (t *cbTree) Validate() error {
	if err := t.Check(); err != nil {
		return err
	}
	return t.CheckBalance(0)
}
