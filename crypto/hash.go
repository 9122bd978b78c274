package crypto

import (
	"github.com/zeebo/blake3"
)

// HashSize is the output size of Hash, matching VertexId's width (spec.md §3).
const HashSize = 32

// Hash returns the 32-byte BLAKE3 digest of b.
func Hash(b []byte) [HashSize]byte {
	return blake3.Sum256(b)
}

// HashKeyed returns the BLAKE3 digest of key followed by b, a
// domain-separated hash (a plain prefix, not BLAKE3's keyed mode).
func HashKeyed(key [32]byte, b []byte) [HashSize]byte {
	h := blake3.New()
	h.Write(key[:])
	h.Write(b)
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}
