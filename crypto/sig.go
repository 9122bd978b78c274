package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// Signature parameter sizes. ML-DSA-65 matches the NIST Level 3 contract
// spec.md §6.1 requires of the signature provider.
const (
	SigPublicKeySize = mldsa65.PublicKeySize
	SigSecretKeySize = mldsa65.PrivateKeySize
	SigSize          = mldsa65.SignatureSize
)

var sigScheme = mldsa65.Scheme()

// SigKeyPair holds the marshaled public/secret key bytes.
type SigKeyPair struct {
	PublicKey []byte
	SecretKey Secret
}

// SigKeygen generates a fresh ML-DSA-65 signing key pair.
func SigKeygen() (SigKeyPair, error) {
	pk, sk, err := sigScheme.GenerateKey()
	if err != nil {
		return SigKeyPair{}, fmt.Errorf("crypto: sig keygen: %w", err)
	}
	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return SigKeyPair{}, fmt.Errorf("crypto: marshal sig public key: %w", err)
	}
	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return SigKeyPair{}, fmt.Errorf("crypto: marshal sig secret key: %w", err)
	}
	return SigKeyPair{PublicKey: pkBytes, SecretKey: NewSecret(skBytes)}, nil
}

// SigSign signs msg with the secret key bytes skBytes.
func SigSign(skBytes, msg []byte) ([]byte, error) {
	sk, err := sigScheme.UnmarshalBinaryPrivateKey(skBytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: unmarshal sig secret key: %w", err)
	}
	sig := make([]byte, SigSize)
	if err := mldsa65.SignTo(sk.(*mldsa65.PrivateKey), msg, nil, false, sig); err != nil {
		return nil, fmt.Errorf("crypto: sign: %w", err)
	}
	return sig, nil
}

// SigVerify checks sigma over msg under the public key pkBytes. It is
// written branch-flat: whether the public key fails to parse or the
// signature fails to verify, the function returns false with no
// distinguishing side channel, per spec.md §4.1/§7.
func SigVerify(pkBytes, msg, sigma []byte) bool {
	pk, err := sigScheme.UnmarshalBinaryPublicKey(pkBytes)
	ok := err == nil && mldsa65.Verify(pkForVerify(pk), msg, nil, sigma)
	return ok
}

func pkForVerify(pk any) *mldsa65.PublicKey {
	p, _ := pk.(*mldsa65.PublicKey)
	return p
}
