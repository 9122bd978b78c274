package vertex

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	qcrypto "github.com/qudag/qudag/crypto"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := qcrypto.SigKeygen()
	require.NoError(t, err)

	v := New([]VertexId{ids.Empty}, []byte("hello"), kp.PublicKey, 1, 42)
	require.NoError(t, v.Sign(kp.SecretKey.Bytes()))
	require.True(t, v.Verify())

	v.Payload = []byte("tampered")
	require.False(t, v.Verify())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	kp, err := qcrypto.SigKeygen()
	require.NoError(t, err)

	v := New([]VertexId{ids.Empty}, []byte("hello"), kp.PublicKey, 7, 9)
	require.NoError(t, v.Sign(kp.SecretKey.Bytes()))

	encoded, err := Encode(v)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, v.Payload, decoded.Payload)
	require.Equal(t, v.AuthorPK, decoded.AuthorPK)
	require.Equal(t, v.Timestamp, decoded.Timestamp)
	require.Equal(t, v.Nonce, decoded.Nonce)
	require.Equal(t, v.Signature, decoded.Signature)
	require.True(t, decoded.Verify())

	reEncoded, err := Encode(decoded)
	require.NoError(t, err)
	require.Equal(t, encoded, reEncoded)
}

func TestValidateParentBounds(t *testing.T) {
	kp, err := qcrypto.SigKeygen()
	require.NoError(t, err)

	v := New(nil, []byte("x"), kp.PublicKey, 0, 0)
	require.Error(t, v.Validate(false))
	require.NoError(t, v.Validate(true))

	parents := make([]VertexId, MaxParents+1)
	v2 := New(parents, []byte("x"), kp.PublicKey, 0, 0)
	require.Error(t, v2.Validate(false))
}
