package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// KEM parameter sizes, matching the Post-quantum primitives provider
// contract of spec.md §6.1: {pk=1184B, sk=2400B, ct=1088B, ss=32B}.
const (
	KEMPublicKeySize  = mlkem768.PublicKeySize
	KEMSecretKeySize  = mlkem768.PrivateKeySize
	KEMCiphertextSize = mlkem768.CiphertextSize
	KEMSharedKeySize  = mlkem768.SharedKeySize
)

var kemScheme = mlkem768.Scheme()

// KEMKeyPair holds the marshaled public/secret key bytes.
type KEMKeyPair struct {
	PublicKey []byte
	SecretKey Secret
}

// KemKeygen generates a fresh ML-KEM-768 key pair.
func KemKeygen() (KEMKeyPair, error) {
	pk, sk, err := kemScheme.GenerateKeyPair()
	if err != nil {
		return KEMKeyPair{}, fmt.Errorf("crypto: kem keygen: %w", err)
	}
	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return KEMKeyPair{}, fmt.Errorf("crypto: marshal kem public key: %w", err)
	}
	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return KEMKeyPair{}, fmt.Errorf("crypto: marshal kem secret key: %w", err)
	}
	return KEMKeyPair{PublicKey: pkBytes, SecretKey: NewSecret(skBytes)}, nil
}

// KemEncapsulate derives a shared secret and its ciphertext for pkBytes.
func KemEncapsulate(pkBytes []byte) (ciphertext []byte, sharedSecret Secret, err error) {
	pk, err := kemScheme.UnmarshalBinaryPublicKey(pkBytes)
	if err != nil {
		return nil, Secret{}, fmt.Errorf("crypto: unmarshal kem public key: %w", err)
	}
	ct, ss, err := kemScheme.Encapsulate(pk)
	if err != nil {
		return nil, Secret{}, fmt.Errorf("crypto: kem encapsulate: %w", err)
	}
	return ct, NewSecret(ss), nil
}

// KemDecapsulate recovers the shared secret from a ciphertext using skBytes.
func KemDecapsulate(skBytes, ciphertext []byte) (Secret, error) {
	sk, err := kemScheme.UnmarshalBinaryPrivateKey(skBytes)
	if err != nil {
		return Secret{}, fmt.Errorf("crypto: unmarshal kem secret key: %w", err)
	}
	ss, err := kemScheme.Decapsulate(sk, ciphertext)
	if err != nil {
		return Secret{}, fmt.Errorf("crypto: kem decapsulate: %w", err)
	}
	return NewSecret(ss), nil
}

var _ kem.Scheme = mlkem768.Scheme()
