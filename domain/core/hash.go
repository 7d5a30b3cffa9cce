package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// Short returns the first 12 hex characters, for log output
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// HashFloats fingerprints a sequence of float64 values bit-exactly.
// Two ensembles with identical contents always produce the same hash.
func HashFloats(values ...[]float64) Hash {
	size := 0
	for _, v := range values {
		size += 8 * (len(v) + 1)
	}
	buf := make([]byte, 0, size)
	var word [8]byte
	for _, v := range values {
		binary.BigEndian.PutUint64(word[:], uint64(len(v)))
		buf = append(buf, word[:]...)
		for _, x := range v {
			binary.BigEndian.PutUint64(word[:], math.Float64bits(x))
			buf = append(buf, word[:]...)
		}
	}
	return NewHash(buf)
}
