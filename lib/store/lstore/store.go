package lstore

import (
	"io"

	"github.com/ValentinKolb/ltree/lib/lockmgr"
	"github.com/ValentinKolb/ltree/lib/store"
	"github.com/ValentinKolb/ltree/lib/tree"
	"github.com/ValentinKolb/ltree/lib/tree/engines/cbtree"
	"github.com/ValentinKolb/ltree/lib/tree/engines/ordtree"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("store")

// access is one half of the access control of a store (either read or write)
type access interface {
	acquire()
	release()
}

// sharedAccess maps to the shared mode of a lock
type sharedAccess struct{ lock lockmgr.ILock }

func (a sharedAccess) acquire() { a.lock.RLock() }
func (a sharedAccess) release() { a.lock.RUnlock() }

// exclusiveAccess maps to the exclusive mode of a lock
type exclusiveAccess struct{ lock lockmgr.ILock }

func (a exclusiveAccess) acquire() { a.lock.Lock() }
func (a exclusiveAccess) release() { a.lock.Unlock() }

// lockFreeAccess is used for readers of trees with lock-free reads
type lockFreeAccess struct{}

func (lockFreeAccess) acquire() {}
func (lockFreeAccess) release() {}

type storeImpl struct {
	lock  lockmgr.ILock
	read  access
	write access
	tree  tree.OrderedTree

	searches *xsync.Counter
	inserts  *xsync.Counter
	erases   *xsync.Counter
}

// NewLocalStore creates a new local store instance.
// The lock and the backend are selected once, based on the given configuration.
// An unknown lock kind or backend results in an error with RetCInvalidOperation.
func NewLocalStore(conf store.Config) (store.IStore, error) {
	lock, err := lockmgr.NewLock(conf.Lock)
	if err != nil {
		return nil, store.NewError(store.RetCInvalidOperation, err.Error())
	}

	t, err := newTree(conf)
	if err != nil {
		return nil, err
	}

	s := &storeImpl{
		lock:     lock,
		write:    exclusiveAccess{lock: lock},
		tree:     t,
		searches: xsync.NewCounter(),
		inserts:  xsync.NewCounter(),
		erases:   xsync.NewCounter(),
	}
	if t.SupportsFeature(tree.FeatureLockFreeReads) {
		s.read = lockFreeAccess{}
	} else {
		s.read = sharedAccess{lock: lock}
	}

	log.Infof("created store (lock=%s, tree=%s, pool=%d)", conf.Lock, conf.Backend, conf.PoolCapacity)
	return s, nil
}

// newTree creates the backend selected by conf
func newTree(conf store.Config) (tree.OrderedTree, error) {
	switch conf.Backend {
	case tree.ImplCBTree:
		opts := cbtree.DefaultOptions()
		if conf.PoolCapacity > 0 {
			opts.PoolCapacity = conf.PoolCapacity
		}
		if conf.ReclaimInterval > 0 {
			opts.ReclaimInterval = conf.ReclaimInterval
		}
		return cbtree.New(opts), nil
	case tree.ImplOrdTree:
		opts := ordtree.DefaultOptions()
		if conf.PoolCapacity > 0 {
			opts.PoolCapacity = conf.PoolCapacity
		}
		return ordtree.New(opts), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, "unknown tree implementation "+string(conf.Backend))
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) ReadAcquire()  { s.read.acquire() }
func (s *storeImpl) ReadRelease()  { s.read.release() }
func (s *storeImpl) WriteAcquire() { s.write.acquire() }
func (s *storeImpl) WriteRelease() { s.write.release() }

func (s *storeImpl) Search(key uint64) (string, bool) {
	s.searches.Inc()
	return s.tree.Find(key)
}

func (s *storeImpl) Insert(key uint64, value string) error {
	s.inserts.Inc()
	return store.FromTreeError(s.tree.Insert(key, value))
}

func (s *storeImpl) Upsert(key uint64, value string) (bool, error) {
	s.inserts.Inc()
	replaced, err := s.tree.Upsert(key, value)
	return replaced, store.FromTreeError(err)
}

func (s *storeImpl) Erase(key uint64) (bool, error) {
	s.erases.Inc()
	_, found, err := s.tree.Delete(key)
	return found, store.FromTreeError(err)
}

func (s *storeImpl) FindGreaterThan(key uint64) (tree.Entry, bool) {
	s.searches.Inc()
	return s.tree.FindGreaterThan(key)
}

func (s *storeImpl) FindLessOrEqual(key uint64) (tree.Entry, bool) {
	s.searches.Inc()
	return s.tree.FindLessOrEqual(key)
}

func (s *storeImpl) ForEach(visit func(tree.Entry) bool) {
	s.tree.ForEach(visit)
}

func (s *storeImpl) Destroy(cleanup func(tree.Entry)) error {
	s.WriteAcquire()
	defer s.WriteRelease()

	n := s.tree.Len()
	s.tree.Destroy(cleanup)
	if c, ok := s.tree.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return store.NewError(store.RetCInternalError, err.Error())
		}
	}

	log.Infof("destroyed store with %d entries (searches=%d, inserts=%d, erases=%d)",
		n, s.searches.Value(), s.inserts.Value(), s.erases.Value())
	return nil
}

func (s *storeImpl) Info() store.Info {
	return store.Info{
		Lock: s.lock.Kind(),
		Tree: s.tree.GetInfo(),
	}
}
