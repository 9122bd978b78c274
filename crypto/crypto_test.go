package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKemRoundTrip(t *testing.T) {
	kp, err := KemKeygen()
	require.NoError(t, err)
	defer kp.SecretKey.Zeroize()

	ct, ss, err := KemEncapsulate(kp.PublicKey)
	require.NoError(t, err)
	defer ss.Zeroize()

	ss2, err := KemDecapsulate(kp.SecretKey.Bytes(), ct)
	require.NoError(t, err)
	defer ss2.Zeroize()

	require.Equal(t, ss.Bytes(), ss2.Bytes())
}

func TestSigRoundTrip(t *testing.T) {
	kp, err := SigKeygen()
	require.NoError(t, err)
	defer kp.SecretKey.Zeroize()

	msg := []byte("hello")
	sig, err := SigSign(kp.SecretKey.Bytes(), msg)
	require.NoError(t, err)
	require.True(t, SigVerify(kp.PublicKey, msg, sig))
	require.False(t, SigVerify(kp.PublicKey, []byte("tampered"), sig))
}

func TestAeadRoundTrip(t *testing.T) {
	key := make([]byte, AEADKeySize)
	nonce := make([]byte, AEADNonceSize)
	require.NoError(t, RNG(key))
	require.NoError(t, RNG(nonce))

	aad := []byte("header")
	pt := []byte("payload bytes")

	ct, err := AeadSeal(key, nonce, aad, pt)
	require.NoError(t, err)

	got, err := AeadOpen(key, nonce, aad, ct)
	require.NoError(t, err)
	require.Equal(t, pt, got)

	// Tampering with a single byte must fail open, with no distinct error.
	ct[0] ^= 0xFF
	_, err = AeadOpen(key, nonce, aad, ct)
	require.ErrorIs(t, err, ErrAEADOpen)
}

func TestHashDeterministic(t *testing.T) {
	h1 := Hash([]byte("vertex bytes"))
	h2 := Hash([]byte("vertex bytes"))
	require.Equal(t, h1, h2)

	h3 := Hash([]byte("different"))
	require.NotEqual(t, h1, h3)
}

func TestDeriveHopKeysIndependent(t *testing.T) {
	ss := make([]byte, 32)
	require.NoError(t, RNG(ss))

	fwd, back, err := DeriveHopKeys(ss, 1)
	require.NoError(t, err)
	require.NotEqual(t, fwd, back)

	fwd2, _, err := DeriveHopKeys(ss, 2)
	require.NoError(t, err)
	require.NotEqual(t, fwd, fwd2)
}
