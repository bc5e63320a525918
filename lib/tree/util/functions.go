package util

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"time"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed, e.g. for the random number generators of benchmark workers
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// fall back to the current time, only if the system rng fails
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Key Generation
// --------------------------------------------------------------------------

// ShuffledKeys returns the keys 1..n in a random order derived from seed.
// The same seed always yields the same order.
func ShuffledKeys(n int, seed int64) []uint64 {
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(i) + 1
	}
	rng := mrand.New(mrand.NewSource(seed))
	rng.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})
	return keys
}
