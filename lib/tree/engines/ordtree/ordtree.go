package ordtree

import (
	"github.com/ValentinKolb/ltree/lib/tree"
	"github.com/ValentinKolb/ltree/lib/tree/util"
	"github.com/cockroachdb/errors"
	"github.com/google/btree"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("ordtree")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	DefaultDegree       = 32      // Default B-tree degree
	DefaultPoolCapacity = 1 << 22 // Default maximum number of entries
	freeListSize        = 64      // B-tree nodes kept for reuse after Clear
)

// --------------------------------------------------------------------------
// Core structures
// --------------------------------------------------------------------------

// item is a stored entry. Items come from a node pool and go back to it as
// soon as they leave the tree.
type item struct {
	key   uint64
	value string
}

func less(a, b *item) bool {
	return a.key < b.key
}

// ordTree implements tree.OrderedTree on top of a B-tree. It has no
// concurrency metadata at all, every call must be guarded by the caller:
// readers with the shared mode of a lock, writers with the exclusive mode.
type ordTree struct {
	items    *btree.BTreeG[*item]
	freeList *btree.FreeListG[*item]
	pool     *util.NodePool[item]
	degree   int
}

// Options configures the tree during initialization
type Options struct {
	Degree       int // B-tree degree (0 = DefaultDegree)
	PoolCapacity int // Maximum number of entries (0 = DefaultPoolCapacity)

	// PoisonRecycled clears recycled items. For tests.
	PoisonRecycled bool
}

// DefaultOptions returns the default tree options
func DefaultOptions() *Options {
	return &Options{
		Degree:       DefaultDegree,
		PoolCapacity: DefaultPoolCapacity,
	}
}

// Metadata is reported in tree.TreeInfo.Metadata
type Metadata struct {
	Degree int `json:"degree"`
}

// --------------------------------------------------------------------------
// Initialization
// --------------------------------------------------------------------------

// New creates a new tree with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func New(opts *Options) tree.OrderedTree {
	return newTree(opts)
}

func newTree(opts *Options) *ordTree {
	if opts == nil {
		opts = DefaultOptions()
	}
	degree := opts.Degree
	if degree < 2 {
		degree = DefaultDegree
	}
	capacity := opts.PoolCapacity
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}

	var poolOpts []util.PoolOption[item]
	if opts.PoisonRecycled {
		poolOpts = append(poolOpts, util.WithPoison(func(it *item) {
			it.key = ^uint64(0)
			it.value = ""
		}))
	}

	freeList := btree.NewFreeListG[*item](freeListSize)
	return &ordTree{
		items:    btree.NewWithFreeListG[*item](degree, less, freeList),
		freeList: freeList,
		pool:     util.NewNodePool[item](capacity, poolOpts...),
		degree:   degree,
	}
}

// searchKey returns a search key, it is never stored
func searchKey(key uint64) *item {
	return &item{key: key}
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Find retrieves the value for an exact key
func (t *ordTree) Find(key uint64) (string, bool) {
	it, found := t.items.Get(searchKey(key))
	if !found {
		return "", false
	}
	return it.value, true
}

// FindGreaterThan returns the entry with the smallest key strictly greater than key
func (t *ordTree) FindGreaterThan(key uint64) (tree.Entry, bool) {
	var res tree.Entry
	found := false
	t.items.AscendGreaterOrEqual(searchKey(key), func(it *item) bool {
		if it.key == key {
			return true
		}
		res = tree.Entry{Key: it.key, Value: it.value}
		found = true
		return false
	})
	return res, found
}

// FindLessOrEqual returns the entry with the largest key less than or equal to key
func (t *ordTree) FindLessOrEqual(key uint64) (tree.Entry, bool) {
	var res tree.Entry
	found := false
	t.items.DescendLessOrEqual(searchKey(key), func(it *item) bool {
		res = tree.Entry{Key: it.key, Value: it.value}
		found = true
		return false
	})
	return res, found
}

// ForEach visits all entries in ascending key order until visit returns false
func (t *ordTree) ForEach(visit func(tree.Entry) bool) {
	t.items.Ascend(func(it *item) bool {
		return visit(tree.Entry{Key: it.key, Value: it.value})
	})
}

// Len returns the number of entries in the tree
func (t *ordTree) Len() int {
	return t.items.Len()
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Insert adds a new entry, an existing key is rejected with tree.ErrDuplicateKey
func (t *ordTree) Insert(key uint64, value string) error {
	if t.items.Has(searchKey(key)) {
		return errors.Wrapf(tree.ErrDuplicateKey, "key %d", key)
	}
	return t.insert(key, value)
}

func (t *ordTree) insert(key uint64, value string) error {
	it, err := t.pool.Allocate()
	if err != nil {
		return errors.Wrapf(err, "insert key %d", key)
	}
	it.key = key
	it.value = value
	t.items.ReplaceOrInsert(it)
	return nil
}

// Upsert inserts or replaces the value for a key
func (t *ordTree) Upsert(key uint64, value string) (bool, error) {
	if it, found := t.items.Get(searchKey(key)); found {
		it.value = value
		return true, nil
	}
	if err := t.insert(key, value); err != nil {
		return false, err
	}
	return false, nil
}

// Delete removes the entry for a key and returns its value
func (t *ordTree) Delete(key uint64) (string, bool, error) {
	it, found := t.items.Delete(searchKey(key))
	if !found {
		return "", false, nil
	}
	value := it.value
	// the caller's exclusive lock guarantees that nobody else holds the item
	t.pool.Recycle(it)
	return value, true, nil
}

// Destroy calls cleanup once per entry in key order and returns every item to the pool
func (t *ordTree) Destroy(cleanup func(tree.Entry)) {
	removed := make([]*item, 0, t.items.Len())
	t.items.Ascend(func(it *item) bool {
		if cleanup != nil {
			cleanup(tree.Entry{Key: it.key, Value: it.value})
		}
		removed = append(removed, it)
		return true
	})

	t.items.Clear(true)
	for _, it := range removed {
		t.pool.Recycle(it)
	}

	plog.Debugf("destroyed tree with %d entries", len(removed))
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
	tree.FeatureForEach

// SupportsFeature checks if the tree supports the specified feature(s).
func (t *ordTree) SupportsFeature(feature tree.Feature) bool {
	return supportedFeatures&feature == feature
}

// GetInfo returns information about the tree. The B-tree does not expose its
// height, the reported height is the smallest height that can hold all entries.
func (t *ordTree) GetInfo() tree.TreeInfo {
	var features []tree.Feature
	for f := tree.FeatureSearch; f <= tree.FeatureLockFreeReads; f <<= 1 {
		if t.SupportsFeature(f) {
			features = append(features, f)
		}
	}

	return tree.TreeInfo{
		Size:              t.Len(),
		Height:            minHeight(t.Len(), t.degree),
		TreeType:          tree.ImplOrdTree,
		SupportedFeatures: features,
		Pool:              t.pool.Info(),
		Metadata:          Metadata{Degree: t.degree},
	}
}

// minHeight returns the height of a completely full B-tree holding n items
func minHeight(n, degree int) int {
	height := 0
	capacity := 0
	nodes := 1
	for capacity < n {
		capacity += nodes * (2*degree - 1)
		nodes *= 2 * degree
		height++
	}
	return height
}

// Validate implements tree.Validator: entries are strictly ascending and
// every entry holds exactly one pool item.
func (t *ordTree) Validate() error {
	var prev *item
	count := 0
	var err error
	t.items.Ascend(func(it *item) bool {
		if prev != nil && prev.key >= it.key {
			err = errors.Newf("key %d follows key %d", it.key, prev.key)
			return false
		}
		prev = it
		count++
		return true
	})
	if err != nil {
		return err
	}
	if count != t.items.Len() {
		return errors.Newf("iteration visited %d entries, tree reports %d", count, t.items.Len())
	}
	if inUse := t.pool.InUse(); inUse != int64(count) {
		return errors.Newf("pool reports %d items in use for %d entries", inUse, count)
	}
	return nil
}
