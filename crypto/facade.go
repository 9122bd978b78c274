package crypto

import "crypto/rand"

// RNG fills b with cryptographically secure random bytes, matching the
// RNG collaborator interface of spec.md §6.1.
func RNG(b []byte) error {
	_, err := rand.Read(b)
	return err
}
