package lockmgr

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Kinds returns all supported lock kinds
func Kinds() []Kind {
	return []Kind{KindMutex, KindRWLock, KindSpinlock, KindRWSem}
}

// ParseKind parses a lock kind. Matching is case-insensitive, so the
// upper case spellings (MUTEX, RWLOCK, SPINLOCK, RWSEM) are accepted as well.
func ParseKind(s string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range Kinds() {
		if k == kind {
			return k, nil
		}
	}
	return "", errors.Newf("unknown lock kind %q (valid: mutex, rwlock, spinlock, rwsem)", s)
}
