package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/qudag/qudag/qudagerrors"
)

// ErrAEADOpen is returned by AeadOpen on any failure, collapsing
// wrong-key and tampered-ciphertext cases into one opaque sentinel.
var ErrAEADOpen = qudagerrors.ErrUnauthenticated

// AEADKeySize and AEADNonceSize match chacha20poly1305.KeySize/NonceSize,
// the same primitive the teacher's qzmq session uses post-handshake.
const (
	AEADKeySize   = chacha20poly1305.KeySize
	AEADNonceSize = chacha20poly1305.NonceSize
	// AEADOverhead is the authentication tag length AeadSeal appends to
	// every ciphertext, used by the onion packet processor to size
	// padding so a sealed layer fits the target packet size.
	AEADOverhead = chacha20poly1305.Overhead
)

// AeadSeal encrypts pt under key/nonce, authenticating aad.
func AeadSeal(key, nonce, aad, pt []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new aead: %w", err)
	}
	if len(nonce) != AEADNonceSize {
		return nil, fmt.Errorf("crypto: nonce must be %d bytes, got %d", AEADNonceSize, len(nonce))
	}
	return aead.Seal(nil, nonce, pt, aad), nil
}

// AeadOpen decrypts ct under key/nonce, checking aad. On any failure it
// returns ErrAEADOpen with no further detail — per spec.md §7 no error
// path may distinguish a wrong key from a tampered payload.
func AeadOpen(key, nonce, aad, ct []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, ErrAEADOpen
	}
	if len(nonce) != AEADNonceSize {
		return nil, ErrAEADOpen
	}
	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrAEADOpen
	}
	return pt, nil
}

// DeriveHopKeys derives the forward/backward direction keys for onion hop
// index i from a KEM shared secret, the way the teacher's qzmq session
// derives its send/recv keys — here via HKDF instead of a raw hash, so
// forward and backward keys are cryptographically independent.
func DeriveHopKeys(sharedSecret []byte, hopIndex int) (forward, backward []byte, err error) {
	salt := []byte("qudag-onion-v1")
	info := make([]byte, 4)
	info[0] = byte(hopIndex)
	info[1] = 'f'
	forward, err = deriveKey(sharedSecret, salt, info)
	if err != nil {
		return nil, nil, err
	}
	info[1] = 'b'
	backward, err = deriveKey(sharedSecret, salt, info)
	if err != nil {
		return nil, nil, err
	}
	return forward, backward, nil
}

func deriveKey(secret, salt, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, info)
	out := make([]byte, AEADKeySize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("crypto: hkdf: %w", err)
	}
	return out, nil
}
