package cbtree

import (
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/ltree/lib/tree"
	"github.com/ValentinKolb/ltree/lib/tree/util"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("cbtree")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// weight is the balance factor: no subtree may be more than weight times
	// as large as its sibling (with a small slack for tiny subtrees)
	weight = 4

	// DefaultPoolCapacity is the default maximum number of live nodes,
	// including retired nodes that wait for their grace period
	DefaultPoolCapacity = 1 << 22

	// poisonKey is written into recycled nodes when poisoning is enabled
	poisonKey = ^uint64(0)
)

// --------------------------------------------------------------------------
// Core structures
// --------------------------------------------------------------------------

// node is a tree node. Once a node is reachable from the root, key and value
// never change. Readers only ever follow left and right, size belongs to the
// (single) writer.
type node struct {
	left  atomic.Pointer[node]
	right atomic.Pointer[node]
	size  int

	key   uint64
	value string

	dead atomic.Bool // set when the node went back to the pool (poisoning only)
}

func nodeSize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

// cbTree implements tree.OrderedTree with lock-free readers
type cbTree struct {
	root  atomic.Pointer[node]
	count atomic.Int64

	pool  *util.NodePool[node]
	epoch *util.EpochTracker[node]

	writing  atomic.Bool // asserts that writers are serialized
	poisoned bool

	useAfterRecycle atomic.Int64
}

// Options configures the tree during initialization
type Options struct {
	PoolCapacity    int           // Maximum number of live nodes (0 = DefaultPoolCapacity)
	ReclaimInterval time.Duration // Time between reclaimer runs (0 = util.DefaultReclaimInterval)

	// PoisonRecycled marks recycled nodes and makes readers count every visit
	// of such a node (reported as UseAfterRecycle in the metadata). For tests.
	PoisonRecycled bool
}

// DefaultOptions returns the default tree options
func DefaultOptions() *Options {
	return &Options{
		PoolCapacity:    DefaultPoolCapacity,
		ReclaimInterval: util.DefaultReclaimInterval,
	}
}

// Metadata is reported in tree.TreeInfo.Metadata
type Metadata struct {
	Epoch           uint64  `json:"epoch"`
	ActiveReaders   int64   `json:"active_readers"`
	PendingRetired  int64   `json:"pending_retired"`
	QueuedRetires   int     `json:"queued_retires"`
	AverageDepth    float64 `json:"average_depth"`
	MedianDepth     int     `json:"median_depth"`
	MaxDepth        int     `json:"max_depth"`
	UseAfterRecycle int64   `json:"use_after_recycle"`
}

// --------------------------------------------------------------------------
// Initialization
// --------------------------------------------------------------------------

// New creates a new tree with the specified options (optional).
// The returned tree also implements io.Closer and tree.Validator.
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func New(opts *Options) tree.OrderedTree {
	return newTree(opts)
}

func newTree(opts *Options) *cbTree {
	if opts == nil {
		opts = DefaultOptions()
	}
	capacity := opts.PoolCapacity
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}

	t := &cbTree{poisoned: opts.PoisonRecycled}

	var poolOpts []util.PoolOption[node]
	if opts.PoisonRecycled {
		poolOpts = append(poolOpts, util.WithPoison(poisonNode))
	}
	t.pool = util.NewNodePool[node](capacity, poolOpts...)
	t.epoch = util.NewEpochTracker[node](t.pool.Recycle, opts.ReclaimInterval)

	return t
}

// poisonNode makes a recycled node recognizable for readers
func poisonNode(n *node) {
	n.dead.Store(true)
	n.left.Store(nil)
	n.right.Store(nil)
	n.key = poisonKey
	n.value = ""
	n.size = -1
}

// --------------------------------------------------------------------------
// Read Operations (lock-free)
// --------------------------------------------------------------------------

// visit is called for every node a reader dereferences
func (t *cbTree) visit(n *node) {
	if t.poisoned && n.dead.Load() {
		t.useAfterRecycle.Add(1)
	}
}

// Find retrieves the value for an exact key.
//
// Thread-safety: This method is thread-safe and lock-free.
func (t *cbTree) Find(key uint64) (string, bool) {
	tok := t.epoch.Enter()
	defer t.epoch.Exit(tok)

	n := t.root.Load()
	for n != nil {
		t.visit(n)
		switch {
		case key == n.key:
			return n.value, true
		case key < n.key:
			n = n.left.Load()
		default:
			n = n.right.Load()
		}
	}
	return "", false
}

// FindGreaterThan returns the entry with the smallest key strictly greater than key.
//
// Thread-safety: This method is thread-safe and lock-free.
func (t *cbTree) FindGreaterThan(key uint64) (tree.Entry, bool) {
	tok := t.epoch.Enter()
	defer t.epoch.Exit(tok)

	var res *node
	n := t.root.Load()
	for n != nil {
		t.visit(n)
		if n.key > key {
			res = n
			n = n.left.Load()
		} else {
			n = n.right.Load()
		}
	}
	if res == nil {
		return tree.Entry{}, false
	}
	return tree.Entry{Key: res.key, Value: res.value}, true
}

// FindLessOrEqual returns the entry with the largest key less than or equal to key.
//
// Thread-safety: This method is thread-safe and lock-free.
func (t *cbTree) FindLessOrEqual(key uint64) (tree.Entry, bool) {
	tok := t.epoch.Enter()
	defer t.epoch.Exit(tok)

	var res *node
	n := t.root.Load()
	for n != nil {
		t.visit(n)
		if n.key == key {
			return tree.Entry{Key: n.key, Value: n.value}, true
		}
		if n.key > key {
			n = n.left.Load()
		} else {
			res = n
			n = n.right.Load()
		}
	}
	if res == nil {
		return tree.Entry{}, false
	}
	return tree.Entry{Key: res.key, Value: res.value}, true
}

// ForEach visits all entries in ascending key order until visit returns false.
// The traversal runs inside one read section, visit must not call Destroy.
//
// Thread-safety: This method is thread-safe and lock-free. Entries inserted or
// deleted concurrently may or may not be visited.
func (t *cbTree) ForEach(visit func(tree.Entry) bool) {
	tok := t.epoch.Enter()
	defer t.epoch.Exit(tok)

	t.inorder(t.root.Load(), visit)
}

func (t *cbTree) inorder(n *node, visit func(tree.Entry) bool) bool {
	if n == nil {
		return true
	}
	t.visit(n)
	if !t.inorder(n.left.Load(), visit) {
		return false
	}
	if !visit(tree.Entry{Key: n.key, Value: n.value}) {
		return false
	}
	return t.inorder(n.right.Load(), visit)
}

// Len returns the number of entries in the tree.
//
// Thread-safety: This method is thread-safe.
func (t *cbTree) Len() int {
	return int(t.count.Load())
}

// --------------------------------------------------------------------------
// Write Operations (serialized by the caller)
// --------------------------------------------------------------------------

// beginWrite asserts that no other writer is active
func (t *cbTree) beginWrite() {
	if !t.writing.CompareAndSwap(false, true) {
		panic(errors.AssertionFailedf("cbtree: concurrent writers detected"))
	}
}

func (t *cbTree) endWrite() {
	t.writing.Store(false)
}

// locate walks the published tree like a reader would and returns the number
// of nodes on the search path and the node holding key (if any).
// Only the writer calls locate, so the tree cannot change underneath it.
func (t *cbTree) locate(key uint64) (depth int, found *node) {
	n := t.root.Load()
	for n != nil {
		depth++
		switch {
		case key == n.key:
			return depth, n
		case key < n.key:
			n = n.left.Load()
		default:
			n = n.right.Load()
		}
	}
	return depth, nil
}

// newWriter reserves the worst case number of nodes for an update that
// rebuilds at most pathLen levels
func (t *cbTree) newWriter(pathLen int) (*writer, error) {
	res, err := t.pool.Reserve(3 * (pathLen + 1))
	if err != nil {
		return nil, err
	}
	return &writer{res: res}, nil
}

// publish makes newRoot visible and hands every consumed node to the reclamation tracker
func (t *cbTree) publish(w *writer, newRoot *node) {
	t.root.Store(newRoot)
	w.res.Release()
	if len(w.retired) > 0 {
		t.epoch.Retire(w.retired...)
	}
}

// Insert adds a new entry. If the key already exists, tree.ErrDuplicateKey is
// returned and the existing value is retained.
//
// Thread-safety: Writers must be serialized by the caller. Readers may run concurrently.
func (t *cbTree) Insert(key uint64, value string) error {
	t.beginWrite()
	defer t.endWrite()

	depth, found := t.locate(key)
	if found != nil {
		return errors.Wrapf(tree.ErrDuplicateKey, "key %d", key)
	}

	w, err := t.newWriter(depth)
	if err != nil {
		return errors.Wrapf(err, "insert key %d", key)
	}

	t.publish(w, w.insert(t.root.Load(), key, value))
	t.count.Add(1)
	return nil
}

// Upsert inserts or replaces the value for a key. A replaced entry is
// rebuilt as a fresh node that takes the place of the old one.
//
// Thread-safety: Writers must be serialized by the caller. Readers may run concurrently.
func (t *cbTree) Upsert(key uint64, value string) (bool, error) {
	t.beginWrite()
	defer t.endWrite()

	depth, found := t.locate(key)
	if found == nil {
		w, err := t.newWriter(depth)
		if err != nil {
			return false, errors.Wrapf(err, "upsert key %d", key)
		}
		t.publish(w, w.insert(t.root.Load(), key, value))
		t.count.Add(1)
		return false, nil
	}

	res, err := t.pool.Reserve(1)
	if err != nil {
		return false, errors.Wrapf(err, "upsert key %d", key)
	}
	w := &writer{res: res}
	t.publish(w, w.replace(t.root.Load(), key, value))
	return true, nil
}

// Delete removes the entry for a key and returns its value.
//
// Thread-safety: Writers must be serialized by the caller. Readers may run concurrently.
func (t *cbTree) Delete(key uint64) (string, bool, error) {
	t.beginWrite()
	defer t.endWrite()

	depth, found := t.locate(key)
	if found == nil {
		return "", false, nil
	}

	// a node with two children is replaced by the minimum of its right
	// subtree, that path gets rebuilt as well
	if found.left.Load() != nil && found.right.Load() != nil {
		for n := found.right.Load(); n != nil; n = n.left.Load() {
			depth++
		}
	}

	w, err := t.newWriter(depth)
	if err != nil {
		return "", false, errors.Wrapf(err, "delete key %d", key)
	}

	var deleted *node
	newRoot := w.delete(t.root.Load(), key, &deleted)
	if deleted == nil {
		panic(errors.AssertionFailedf("cbtree: key %d vanished during delete", key))
	}
	value := deleted.value

	t.publish(w, newRoot)
	t.count.Add(-1)
	return value, true, nil
}

// --------------------------------------------------------------------------
// Teardown
// --------------------------------------------------------------------------

// Destroy unpublishes the whole tree, waits until no reader can observe it
// anymore, calls cleanup once per entry in key order and gives every node
// back to the pool. The tree is empty and usable afterwards.
//
// Thread-safety: Writers must be serialized by the caller.
func (t *cbTree) Destroy(cleanup func(tree.Entry)) {
	t.beginWrite()
	defer t.endWrite()

	old := t.root.Swap(nil)
	entries := t.count.Swap(0)

	// wait for every reader that may have loaded the old root, this also
	// flushes all nodes retired by earlier writes
	t.epoch.Synchronize()

	if cleanup != nil {
		forEachNode(old, func(n *node) {
			cleanup(tree.Entry{Key: n.key, Value: n.value})
		})
	}
	recycleAll(t.pool, old)

	plog.Debugf("destroyed tree with %d entries, %d nodes still in use", entries, t.pool.InUse())
}

// Close destroys the tree and stops its reclaimer goroutine.
// The tree must not be used afterwards.
func (t *cbTree) Close() error {
	t.Destroy(nil)
	t.epoch.Close()
	return nil
}

// forEachNode walks a subtree that no reader can reach anymore in key order
func forEachNode(n *node, fn func(*node)) {
	if n == nil {
		return
	}
	forEachNode(n.left.Load(), fn)
	fn(n)
	forEachNode(n.right.Load(), fn)
}

// recycleAll gives a detached subtree back to the pool (post-order)
func recycleAll(pool *util.NodePool[node], n *node) {
	if n == nil {
		return
	}
	left, right := n.left.Load(), n.right.Load()
	recycleAll(pool, left)
	recycleAll(pool, right)
	pool.Recycle(n)
}

// --------------------------------------------------------------------------
// Feature Support
// --------------------------------------------------------------------------

const supportedFeatures = tree.FeatureSearch |
	tree.FeatureInsert |
	tree.FeatureUpsert |
	tree.FeatureErase |
	tree.FeatureFindGreater |
	tree.FeatureFindLessOrEqual |
	tree.FeatureForEach |
	tree.FeatureLockFreeReads

// SupportsFeature checks if the tree supports the specified feature(s).
func (t *cbTree) SupportsFeature(feature tree.Feature) bool {
	return supportedFeatures&feature == feature
}

// GetInfo returns information about the tree. The depth statistics require
// a full traversal.
//
// Thread-safety: This method is thread-safe.
func (t *cbTree) GetInfo() tree.TreeInfo {
	hist := util.NewDepthHistogram()

	tok := t.epoch.Enter()
	height := t.depths(t.root.Load(), 1, hist)
	t.epoch.Exit(tok)

	var features []tree.Feature
	for f := tree.FeatureSearch; f <= tree.FeatureLockFreeReads; f <<= 1 {
		if t.SupportsFeature(f) {
			features = append(features, f)
		}
	}

	return tree.TreeInfo{
		Size:              t.Len(),
		Height:            height,
		TreeType:          tree.ImplCBTree,
		SupportedFeatures: features,
		Pool:              t.pool.Info(),
		Metadata: Metadata{
			Epoch:           t.epoch.Epoch(),
			ActiveReaders:   t.epoch.ActiveReaders(),
			PendingRetired:  t.epoch.Pending(),
			QueuedRetires:   t.epoch.Queued(),
			AverageDepth:    hist.Average(),
			MedianDepth:     hist.GetPercentile(50),
			MaxDepth:        hist.Max(),
			UseAfterRecycle: t.useAfterRecycle.Load(),
		},
	}
}

// depths records the depth of every node and returns the height of the subtree
func (t *cbTree) depths(n *node, depth int, hist *util.DepthHistogram) int {
	if n == nil {
		return 0
	}
	t.visit(n)
	hist.AddSample(depth)
	return 1 + max(t.depths(n.left.Load(), depth+1, hist), t.depths(n.right.Load(), depth+1, hist))
}
