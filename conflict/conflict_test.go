package conflict

import (
	"testing"

	"github.com/stretchr/testify/require"

	qcrypto "github.com/qudag/qudag/crypto"
	"github.com/qudag/qudag/vertex"
)

func mustVertex(t *testing.T, payload []byte, nonce uint64) *vertex.Vertex {
	t.Helper()
	kp, err := qcrypto.SigKeygen()
	require.NoError(t, err)
	v := vertex.New(nil, payload, kp.PublicKey, 1, nonce)
	require.NoError(t, v.Sign(kp.SecretKey.Bytes()))
	return v
}

func byPayload(v *vertex.Vertex) []ConflictKey {
	return []ConflictKey{ConflictKey(v.Payload)}
}

func TestRecordSingleton(t *testing.T) {
	idx := New(byPayload)
	v := mustVertex(t, []byte("slot-1"), 0)

	idx.Record(v)
	require.True(t, idx.IsSingleton(v.ID()))
	require.Empty(t, idx.Siblings(v.ID()))
}

func TestRecordJoinsConflictSet(t *testing.T) {
	idx := New(byPayload)
	a := mustVertex(t, []byte("slot-42"), 1)
	b := mustVertex(t, []byte("slot-42"), 2)

	idx.Record(a)
	idx.Record(b)

	require.False(t, idx.IsSingleton(a.ID()))
	require.True(t, idx.Siblings(a.ID()).Contains(b.ID()))
	require.True(t, idx.Siblings(b.ID()).Contains(a.ID()))

	setA, _ := idx.ConflictSetOf(a.ID())
	setB, _ := idx.ConflictSetOf(b.ID())
	require.Equal(t, setA, setB)
}

func TestRecordIsIdempotent(t *testing.T) {
	idx := New(byPayload)
	v := mustVertex(t, []byte("slot-1"), 0)

	first := idx.Record(v)
	second := idx.Record(v)
	require.Equal(t, first, second)
}

func TestMergeTransitiveConflicts(t *testing.T) {
	idx := New(byPayload)
	a := mustVertex(t, []byte("slot-A"), 1)
	b := mustVertex(t, []byte("slot-A"), 2)
	c := mustVertex(t, []byte("slot-B"), 3)

	idx.Record(a)
	idx.Record(b)
	idx.Record(c)

	// d shares slot-A with a/b: it joins their ConflictSet, while c
	// (slot-B, no sibling) stays in its own singleton set.
	d := mustVertex(t, []byte("slot-A"), 4)
	idx.Record(d)
	setD, _ := idx.ConflictSetOf(d.ID())
	setC, _ := idx.ConflictSetOf(c.ID())
	require.NotEqual(t, setD, setC)

	members := idx.MarkRejectedExcept(a.ID())
	require.True(t, members.Contains(b.ID()))
	require.True(t, members.Contains(d.ID()))
	require.False(t, members.Contains(a.ID()))
	require.False(t, members.Contains(c.ID()))
}

func TestNilClassifierMeansAllSingletons(t *testing.T) {
	idx := New(nil)
	a := mustVertex(t, []byte("x"), 1)
	b := mustVertex(t, []byte("x"), 2)

	idx.Record(a)
	idx.Record(b)
	require.True(t, idx.IsSingleton(a.ID()))
	require.True(t, idx.IsSingleton(b.ID()))
}
