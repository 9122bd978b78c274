// Package crypto is the Crypto Facade (spec.md §4.1): the only path by
// which the rest of QuDAG touches cryptography. KEM, signature, hash and
// AEAD are each backed by a single real implementation — swapping
// primitives means changing this package only.
package crypto

// Secret wraps a secret byte slice (a KEM shared secret, a signing key)
// so every call site that holds one is forced to decide when to zero it.
type Secret struct {
	b []byte
}

// NewSecret takes ownership of b; callers must not reuse b afterward.
func NewSecret(b []byte) Secret {
	return Secret{b: b}
}

// Bytes returns the underlying slice. Do not retain it past Zeroize.
func (s Secret) Bytes() []byte {
	return s.b
}

// Zeroize overwrites the secret in place. Safe to call more than once.
func (s Secret) Zeroize() {
	for i := range s.b {
		s.b[i] = 0
	}
}
