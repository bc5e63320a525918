package tree

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplOrdTree Implementation = "ordtree" // explicit-lock ordered tree
	ImplCBTree  Implementation = "cbtree"  // concurrent weight-balanced tree
)

// ParseImplementation parses a tree implementation name. Matching is
// case-insensitive, the names RB_TREE (ordtree) and RCU_TREE (cbtree) are
// accepted as aliases.
func ParseImplementation(s string) (Implementation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ImplOrdTree), "rb_tree", "rbtree":
		return ImplOrdTree, nil
	case string(ImplCBTree), "rcu_tree", "rcutree":
		return ImplCBTree, nil
	default:
		return "", errors.Newf("unknown tree implementation %q (valid: ordtree, cbtree)", s)
	}
}

// Feature represents tree features as bit flags
type Feature uint64

const (
	FeatureSearch          Feature = 1 << iota // Support for Search operations
	FeatureInsert                              // Support for Insert operations
	FeatureUpsert                              // Support for Upsert operations
	FeatureErase                               // Support for Erase operations
	FeatureFindGreater                         // Support for FindGreaterThan operations
	FeatureFindLessOrEqual                     // Support for FindLessOrEqual operations
	FeatureForEach                             // Support for ForEach operations
	FeatureLockFreeReads                       // Readers need no external lock
)

func (f Feature) String() string {
	switch f {
	case FeatureSearch:
		return "Search"
	case FeatureInsert:
		return "Insert"
	case FeatureUpsert:
		return "Upsert"
	case FeatureErase:
		return "Erase"
	case FeatureFindGreater:
		return "FindGreaterThan"
	case FeatureFindLessOrEqual:
		return "FindLessOrEqual"
	case FeatureForEach:
		return "ForEach"
	case FeatureLockFreeReads:
		return "LockFreeReads"
	default:
		return "Unknown"
	}
}

// Entry is a single key-value pair stored in a tree.
type Entry struct {
	Key   uint64 `json:"key"`
	Value string `json:"value"`
}

// PoolInfo reports the node pool counters of a tree.
type PoolInfo struct {
	Capacity  int   `json:"capacity"`
	InUse     int64 `json:"in_use"`
	Reserved  int64 `json:"reserved"`
	Allocated int64 `json:"allocated"`
	Recycled  int64 `json:"recycled"`
}

type TreeInfo struct {
	Size              int            `json:"size"`
	Height            int            `json:"height"`
	TreeType          Implementation `json:"tree_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Pool              PoolInfo       `json:"pool"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrAllocationFailure is returned when the node pool is exhausted. The
	// operation was aborted and the tree is unchanged.
	ErrAllocationFailure = errors.New("node pool exhausted")

	// ErrDuplicateKey is returned by Insert if the key is already present.
	// The existing value is retained.
	ErrDuplicateKey = errors.New("duplicate key")
)

// --------------------------------------------------------------------------
// Tree Interface
// --------------------------------------------------------------------------

// OrderedTree defines the interface for the ordered key-value trees used as
// store backends. Keys are unique unsigned integers, values are strings owned
// by the tree once inserted.
//
// Writers (Insert, Upsert, Delete, Destroy) must always be serialized by the
// caller. Whether readers must be serialized against writers depends on the
// FeatureLockFreeReads flag.
type OrderedTree interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Insert adds a new entry. If the key already exists, ErrDuplicateKey is
	// returned and the existing value is retained. If the node pool is
	// exhausted, ErrAllocationFailure is returned. In both cases the tree is
	// left unchanged.
	Insert(key uint64, value string) (err error)

	// Upsert inserts or replaces the value for a key.
	// The boolean return value indicates whether an existing value was replaced.
	Upsert(key uint64, value string) (replaced bool, err error)

	// Delete removes the entry for a key and returns its value.
	// A missing key is not an error, found is false in that case.
	Delete(key uint64) (value string, found bool, err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Find retrieves the value for an exact key.
	Find(key uint64) (value string, found bool)

	// FindGreaterThan returns the entry with the smallest key strictly greater than key.
	FindGreaterThan(key uint64) (entry Entry, found bool)

	// FindLessOrEqual returns the entry with the largest key less than or equal to key.
	FindLessOrEqual(key uint64) (entry Entry, found bool)

	// ForEach visits all entries in ascending key order until visit returns false.
	ForEach(visit func(Entry) bool)

	// Len returns the number of entries in the tree.
	Len() int

	// --------------------------------------------------------------------------
	// Teardown
	// --------------------------------------------------------------------------

	// Destroy calls cleanup (if not nil) exactly once for every entry, then
	// returns all node memory to the pool. The tree is empty afterwards.
	// No writer may be in flight while Destroy runs.
	Destroy(cleanup func(Entry))

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the tree implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the tree.
	GetInfo() (info TreeInfo)
}

// --------------------------------------------------------------------------
// Optional Interfaces
// --------------------------------------------------------------------------

// Validator is implemented by trees that can verify their structural
// invariants. Validate must only be called while no writer is active.
type Validator interface {
	Validate() error
}
