package dagstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qudag/qudag/qudagerrors"
	qcrypto "github.com/qudag/qudag/crypto"
	"github.com/qudag/qudag/vertex"
)

func signedVertex(t *testing.T, parents []VertexId, nonce uint64) (*vertex.Vertex, *qcrypto.SigKeyPair) {
	t.Helper()
	kp, err := qcrypto.SigKeygen()
	require.NoError(t, err)
	v := vertex.New(parents, []byte("payload"), kp.PublicKey, uint64(time.Now().UnixNano()), nonce)
	require.NoError(t, v.Sign(kp.SecretKey.Bytes()))
	return v, kp
}

func TestInsertGenesis(t *testing.T) {
	s := New(1024, 30*time.Second, 8)
	genesis, _ := signedVertex(t, nil, 0)

	admitted, err := s.Insert(genesis)
	require.NoError(t, err)
	require.Equal(t, genesis.ID(), admitted.ID)

	got, ok := s.Get(genesis.ID())
	require.True(t, ok)
	require.Equal(t, genesis.Payload, got.Payload)
	require.Equal(t, []VertexId{genesis.ID()}, s.Tips())
}

func TestInsertChildConsumesTip(t *testing.T) {
	s := New(1024, 30*time.Second, 8)
	genesis, _ := signedVertex(t, nil, 0)
	_, err := s.Insert(genesis)
	require.NoError(t, err)

	child, _ := signedVertex(t, []VertexId{genesis.ID()}, 1)
	_, err = s.Insert(child)
	require.NoError(t, err)

	require.Equal(t, []VertexId{child.ID()}, s.Tips())
	require.Contains(t, s.Descendants(genesis.ID()), child.ID())
	require.Contains(t, s.Ancestors(child.ID(), -1), genesis.ID())
}

func TestInsertDuplicateRejected(t *testing.T) {
	s := New(1024, 30*time.Second, 8)
	genesis, _ := signedVertex(t, nil, 0)
	_, err := s.Insert(genesis)
	require.NoError(t, err)

	_, err = s.Insert(genesis)
	require.ErrorIs(t, err, qudagerrors.ErrDuplicate)
}

func TestInsertBadSignatureRejected(t *testing.T) {
	s := New(1024, 30*time.Second, 8)
	genesis, _ := signedVertex(t, nil, 0)
	genesis.Payload = []byte("tampered after signing")

	_, err := s.Insert(genesis)
	require.ErrorIs(t, err, qudagerrors.ErrUnauthenticated)
}

func TestInsertMissingParentBuffersThenAdmitsOnArrival(t *testing.T) {
	s := New(1024, 30*time.Second, 8)
	genesis, _ := signedVertex(t, nil, 0)
	child, _ := signedVertex(t, []VertexId{genesis.ID()}, 1)

	_, err := s.Insert(child)
	require.ErrorIs(t, err, qudagerrors.ErrMissingDependency)
	require.Equal(t, 1, s.PendingLen())
	_, ok := s.Get(child.ID())
	require.False(t, ok)

	_, err = s.Insert(genesis)
	require.NoError(t, err)

	_, ok = s.Get(child.ID())
	require.True(t, ok)
	require.Equal(t, 0, s.PendingLen())
}

func TestSweepPendingEvictsExpired(t *testing.T) {
	s := New(1024, time.Millisecond, 8)
	genesis, _ := signedVertex(t, nil, 0)
	child, _ := signedVertex(t, []VertexId{genesis.ID()}, 1)

	_, err := s.Insert(child)
	require.ErrorIs(t, err, qudagerrors.ErrMissingDependency)

	time.Sleep(5 * time.Millisecond)
	s.SweepPending(time.Now())
	require.Equal(t, 0, s.PendingLen())
}

func TestRejectedParentBlocksChild(t *testing.T) {
	s := New(1024, 30*time.Second, 8)
	genesis, _ := signedVertex(t, nil, 0)
	_, err := s.Insert(genesis)
	require.NoError(t, err)
	s.MarkRejected(genesis.ID())

	child, _ := signedVertex(t, []VertexId{genesis.ID()}, 1)
	_, err = s.Insert(child)
	require.ErrorIs(t, err, qudagerrors.ErrMalformed)
}

func TestPendingBufferEvictsOldestWhenFull(t *testing.T) {
	s := New(1, 30*time.Second, 8)
	genesis, _ := signedVertex(t, nil, 0)

	first, _ := signedVertex(t, []VertexId{genesis.ID()}, 1)
	second, _ := signedVertex(t, []VertexId{genesis.ID()}, 2)

	_, err := s.Insert(first)
	require.ErrorIs(t, err, qudagerrors.ErrMissingDependency)
	_, err = s.Insert(second)
	require.ErrorIs(t, err, qudagerrors.ErrMissingDependency)

	require.Equal(t, 1, s.PendingLen())

	_, err = s.Insert(genesis)
	require.NoError(t, err)
	_, ok := s.Get(second.ID())
	require.True(t, ok)
	_, ok = s.Get(first.ID())
	require.False(t, ok)
}
