package store

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/ltree/lib/lockmgr"
	"github.com/ValentinKolb/ltree/lib/tree"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config selects the lock kind and the backend of a store. Both are bound once
// at construction and cannot be changed afterward.
type Config struct {
	Lock    lockmgr.Kind        // Lock used for writers (and for readers of backends without lock-free reads)
	Backend tree.Implementation // Tree implementation backing the store

	PoolCapacity    int           // Maximum number of live tree nodes (0 = backend default)
	ReclaimInterval time.Duration // Reclaimer interval of the concurrent tree (0 = default)
}

// DefaultConfig returns the configuration used when nothing is specified
func DefaultConfig() Config {
	return Config{
		Lock:    lockmgr.KindRWLock,
		Backend: tree.ImplCBTree,
	}
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the interface for interacting with an ordered key-value store.
// Write operations return only an error (nil on success), read operations
// return the requested data and never fail. A missing key is reported through
// the boolean result, never as an error.
//
// The caller brackets operations with the acquire/release pairs:
//
//	s.ReadAcquire()
//	v, ok := s.Search(key)
//	s.ReadRelease()
//
//	s.WriteAcquire()
//	err := s.Insert(key, value)
//	s.WriteRelease()
//
// Writers are always mutually exclusive, regardless of the backend.
type IStore interface {

	// --------------------------------------------------------------------------
	// Access Control
	// --------------------------------------------------------------------------

	// ReadAcquire grants read permission. This is a no-op for backends that
	// support lock-free reads, otherwise the shared mode of the configured lock.
	ReadAcquire()
	// ReadRelease releases a permission granted by ReadAcquire.
	ReadRelease()
	// WriteAcquire grants exclusive write permission.
	WriteAcquire()
	// WriteRelease releases a permission granted by WriteAcquire.
	WriteRelease()

	// --------------------------------------------------------------------------
	// Operations
	// --------------------------------------------------------------------------

	// Search returns the value for a key. The boolean return value indicates whether the key was found.
	Search(key uint64) (value string, found bool)
	// Insert adds a new key-value pair. An existing key is retained and an error with RetCDuplicateKey is returned.
	Insert(key uint64, value string) (err error)
	// Upsert inserts or replaces a key-value pair. The boolean return value indicates whether a value was replaced.
	Upsert(key uint64, value string) (replaced bool, err error)
	// Erase removes a key. The boolean return value indicates whether the key was found.
	Erase(key uint64) (found bool, err error)
	// FindGreaterThan returns the entry with the smallest key strictly greater than key.
	FindGreaterThan(key uint64) (entry tree.Entry, found bool)
	// FindLessOrEqual returns the entry with the largest key less than or equal to key.
	FindLessOrEqual(key uint64) (entry tree.Entry, found bool)
	// ForEach visits all entries in ascending key order until visit returns false.
	ForEach(visit func(tree.Entry) bool)

	// --------------------------------------------------------------------------
	// Lifecycle
	// --------------------------------------------------------------------------

	// Destroy calls cleanup (if not nil) once for every entry and releases all
	// resources of the store. The store must not be used afterward.
	Destroy(cleanup func(tree.Entry)) (err error)
	// Info returns metadata about the tree underlying the store.
	// It is not guaranteed that the information is up-to-date!
	Info() (info Info)
}

// Info describes a store and its backend
type Info struct {
	Lock lockmgr.Kind  `json:"lock"`
	Tree tree.TreeInfo `json:"tree"`
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code  RetCode // The return code
	Msg   string  // The error message.
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the tree error the store error was created from (if any).
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// FromTreeError converts an error returned by a tree into a store error.
// nil is returned for a nil error.
func FromTreeError(err error) error {
	if err == nil {
		return nil
	}
	code := RetCInternalError
	switch {
	case errors.Is(err, tree.ErrDuplicateKey):
		code = RetCDuplicateKey
	case errors.Is(err, tree.ErrAllocationFailure):
		code = RetCAllocationFailure
	}
	return &Error{Code: code, Msg: err.Error(), cause: err}
}

// IsCode reports whether err is a store error with the given code.
func IsCode(err error, code RetCode) bool {
	var serr *Error
	return errors.As(err, &serr) && serr.Code == code
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying tree.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCDuplicateKey                        // 4: Key is already present.
	RetCAllocationFailure                   // 5: Node pool exhausted, the store is unchanged.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCDuplicateKey:
		return "DuplicateKey"
	case RetCAllocationFailure:
		return "AllocationFailure"
	default:
		return "Unknown"
	}
}
