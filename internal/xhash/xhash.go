// Package xhash is the hashing helper behind the built-in column types'
// Hash methods and RowSetIndex's open-addressing table (see index.go).
// KeyIndex and GeneralIndex do not use it: they key Go maps by column
// values or by formatted key strings.
package xhash

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// Int64 hashes a signed integer.
func Int64(v int64) uint64 {
	var buf [8]byte
	u := uint64(v)
	for i := 0; i < 8; i++ {
		buf[i] = byte(u >> (8 * i))
	}
	return xxhash.Sum64(buf[:])
}

// Float64 hashes a float64 via its bit pattern.
func Float64(v float64) uint64 {
	return Int64(int64(math.Float64bits(v)))
}

// String hashes a string.
func String(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Tuple combines the per-column hashes of a row into one bucket hash.
// The combination must be order-sensitive: (a, b) and (b, a) hash
// differently. This mirrors the FNV-style "hash = hash*prime xor h"
// combinator, but seeded from xxhash instead of FNV so tables with wide
// rows don't pay for a slow per-byte hash loop.
func Tuple(columnHashes []uint64) uint64 {
	h := uint64(14695981039346656037)
	for _, c := range columnHashes {
		h ^= c
		h *= 1099511628211
	}
	return h
}
