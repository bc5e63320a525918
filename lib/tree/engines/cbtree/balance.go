package cbtree

import (
	"github.com/ValentinKolb/ltree/lib/tree/util"
	"github.com/cockroachdb/errors"
)

// side tells mkBalanced which child of cur is being replaced
type side int

const (
	replaceLeft side = iota
	replaceRight
)

// writer holds the state of one structural update: the nodes reserved for it
// and the nodes it consumed. Consumed nodes stay readable until the update was
// published and the reclamation tracker recycled them.
type writer struct {
	res     util.Reservation[node]
	retired []*node
}

// mkNode builds a fresh, not yet published node
func (w *writer) mkNode(left, right *node, key uint64, value string) *node {
	n := w.res.Allocate()
	n.dead.Store(false)
	n.left.Store(left)
	n.right.Store(right)
	n.size = 1 + nodeSize(left) + nodeSize(right)
	n.key = key
	n.value = value
	return n
}

func (w *writer) retire(n *node) {
	w.retired = append(w.retired, n)
}

// --------------------------------------------------------------------------
// Rotations
// --------------------------------------------------------------------------
//
// Rotations never modify published nodes. They build the rotated subtree
// from fresh nodes and retire the nodes it replaces. kv is the node whose
// key and value end up in the rotated position.

func (w *writer) singleL(left, right, kv *node) *node {
	res := w.mkNode(
		w.mkNode(left, right.left.Load(), kv.key, kv.value),
		right.right.Load(),
		right.key, right.value)
	w.retire(right)
	return res
}

func (w *writer) doubleL(left, right, kv *node) *node {
	rl := right.left.Load()
	res := w.mkNode(
		w.mkNode(left, rl.left.Load(), kv.key, kv.value),
		w.mkNode(rl.right.Load(), right.right.Load(), right.key, right.value),
		rl.key, rl.value)
	w.retire(rl)
	w.retire(right)
	return res
}

func (w *writer) singleR(left, right, kv *node) *node {
	res := w.mkNode(
		left.left.Load(),
		w.mkNode(left.right.Load(), right, kv.key, kv.value),
		left.key, left.value)
	w.retire(left)
	return res
}

func (w *writer) doubleR(left, right, kv *node) *node {
	lr := left.right.Load()
	res := w.mkNode(
		w.mkNode(left.left.Load(), lr.left.Load(), left.key, left.value),
		w.mkNode(lr.right.Load(), right, kv.key, kv.value),
		lr.key, lr.value)
	w.retire(lr)
	w.retire(left)
	return res
}

// balanceL fixes a right-heavy node
func (w *writer) balanceL(left, right, kv *node) *node {
	if nodeSize(right.left.Load()) < nodeSize(right.right.Load()) {
		return w.singleL(left, right, kv)
	}
	return w.doubleL(left, right, kv)
}

// balanceR fixes a left-heavy node
func (w *writer) balanceR(left, right, kv *node) *node {
	if nodeSize(left.right.Load()) < nodeSize(left.left.Load()) {
		return w.singleR(left, right, kv)
	}
	return w.doubleR(left, right, kv)
}

// mkBalanced creates a balanced node from the given children to replace cur.
//
// If a rotation is needed, the result is always a new subtree and cur is
// retired. Otherwise, in place mode updates cur directly: exactly one child
// pointer (the one named by s) is stored, which is the only change a reader
// can observe. Without in place mode cur is copied and retired.
func (w *writer) mkBalanced(cur, left, right *node, s side, inPlace bool) *node {
	ln, rn := nodeSize(left), nodeSize(right)

	if ln+rn >= 2 {
		var res *node
		switch {
		case rn > weight*ln:
			res = w.balanceL(left, right, cur)
		case ln > weight*rn:
			res = w.balanceR(left, right, cur)
		}
		if res != nil {
			w.retire(cur)
			return res
		}
	}

	if !inPlace {
		res := w.mkNode(left, right, cur.key, cur.value)
		w.retire(cur)
		return res
	}

	if s == replaceLeft {
		if cur.right.Load() != right {
			panic(errors.AssertionFailedf("cbtree: in place update of key %d changed both children", cur.key))
		}
		cur.left.Store(left)
	} else {
		if cur.left.Load() != left {
			panic(errors.AssertionFailedf("cbtree: in place update of key %d changed both children", cur.key))
		}
		cur.right.Store(right)
	}
	cur.size = 1 + ln + rn
	return cur
}

// --------------------------------------------------------------------------
// Structural updates
// --------------------------------------------------------------------------

// insert adds key below n and returns the node that takes n's place.
// The key must not be present.
func (w *writer) insert(n *node, key uint64, value string) *node {
	if n == nil {
		return w.mkNode(nil, nil, key, value)
	}

	// rebalancing happens bottom up, sizes are only touched after the new
	// node was linked in
	switch {
	case key < n.key:
		return w.mkBalanced(n, w.insert(n.left.Load(), key, value), n.right.Load(), replaceLeft, true)
	case key > n.key:
		return w.mkBalanced(n, n.left.Load(), w.insert(n.right.Load(), key, value), replaceRight, true)
	default:
		panic(errors.AssertionFailedf("cbtree: insert of present key %d", key))
	}
}

// deleteMin removes the minimum of the subtree n and returns the new subtree.
// The path is always copied: the minimum moves up to a position that is
// linked in by the caller's single in place update, so until then readers
// must still find it at its old position.
func (w *writer) deleteMin(n *node, minNode **node) *node {
	left, right := n.left.Load(), n.right.Load()
	if left == nil {
		*minNode = n
		return right
	}
	return w.mkBalanced(n, w.deleteMin(left, minNode), right, replaceLeft, false)
}

// delete removes key below n and returns the node that takes n's place.
// The removed node is stored in deleted.
func (w *writer) delete(n *node, key uint64, deleted **node) *node {
	if n == nil {
		return nil
	}

	left, right := n.left.Load(), n.right.Load()
	switch {
	case key < n.key:
		return w.mkBalanced(n, w.delete(left, key, deleted), right, replaceLeft, true)
	case key > n.key:
		return w.mkBalanced(n, left, w.delete(right, key, deleted), replaceRight, true)
	}

	*deleted = n
	w.retire(n)
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}

	// the minimum is still linked below us, it is rebuilt as a fresh node in
	// our position
	var minNode *node
	right = w.deleteMin(right, &minNode)
	return w.mkBalanced(minNode, left, right, replaceRight, false)
}

// replace rebuilds the node holding key with a new value. The fresh node is
// linked in with a single pointer store in its parent.
func (w *writer) replace(root *node, key uint64, value string) *node {
	var parent *node
	n := root
	for n != nil && n.key != key {
		parent = n
		if key < n.key {
			n = n.left.Load()
		} else {
			n = n.right.Load()
		}
	}
	if n == nil {
		panic(errors.AssertionFailedf("cbtree: replace of missing key %d", key))
	}

	fresh := w.mkNode(n.left.Load(), n.right.Load(), key, value)
	w.retire(n)

	switch {
	case parent == nil:
		return fresh
	case key < parent.key:
		parent.left.Store(fresh)
	default:
		parent.right.Store(fresh)
	}
	return root
}
