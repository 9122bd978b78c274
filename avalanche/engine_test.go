package avalanche

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/qudag/qudag/conflict"
	"github.com/qudag/qudag/config"
	"github.com/qudag/qudag/dagstore"
	qcrypto "github.com/qudag/qudag/crypto"
	"github.com/qudag/qudag/vertex"
)

type fixedPeers []ids.NodeID

func (p fixedPeers) Peers() []ids.NodeID { return p }

// unanimousTransport answers every query with the same vote.
type unanimousTransport struct {
	vote Vote
}

func (t *unanimousTransport) Query(ctx context.Context, peer ids.NodeID, v VertexId) (Vote, error) {
	return t.vote, nil
}

func newPeers(n int) fixedPeers {
	out := make(fixedPeers, n)
	for i := range out {
		out[i] = ids.GenerateTestNodeID()
	}
	return out
}

func signedVertex(t *testing.T, parents []VertexId, payload []byte, nonce uint64) *vertex.Vertex {
	t.Helper()
	kp, err := qcrypto.SigKeygen()
	require.NoError(t, err)
	v := vertex.New(parents, payload, kp.PublicKey, uint64(time.Now().UnixNano()), nonce)
	require.NoError(t, v.Sign(kp.SecretKey.Bytes()))
	return v
}

func newTestEngine(cfg config.Config, transport Transport, peers PeerSet) (*Engine, *dagstore.Store) {
	store := dagstore.New(cfg.MaxPending, cfg.PendingTTL, cfg.MaxParents)
	idx := conflict.New(nil)
	return New(cfg, store, idx, transport, peers, nil), store
}

func TestSingletonStartsPreferredHalfConfidence(t *testing.T) {
	cfg := config.LocalConfig
	e, store := newTestEngine(cfg, &unanimousTransport{vote: VotePreferred}, newPeers(3))

	v := signedVertex(t, nil, []byte("genesis"), 0)
	_, err := store.Insert(v)
	require.NoError(t, err)
	e.Admit(v, true)

	pref, ok := e.Preferred(v.ID())
	require.True(t, ok)
	require.True(t, pref)
	conf, ok := e.Confidence(v.ID())
	require.True(t, ok)
	require.Equal(t, 0.5, conf)
}

func TestRunRoundReachesFinality(t *testing.T) {
	cfg := config.LocalConfig
	e, store := newTestEngine(cfg, &unanimousTransport{vote: VotePreferred}, newPeers(3))

	v := signedVertex(t, nil, []byte("genesis"), 0)
	_, err := store.Insert(v)
	require.NoError(t, err)
	e.Admit(v, true)

	ctx := context.Background()
	var finalized bool
	for i := 0; i < 100; i++ {
		require.NoError(t, e.RunRound(ctx, v.ID()))
		if store.IsFinalized(v.ID()) {
			finalized = true
			break
		}
	}
	require.True(t, finalized)
}

func TestRunRoundRejectsLoserOnFinality(t *testing.T) {
	cfg := config.LocalConfig
	transport := &unanimousTransport{vote: VotePreferred}
	store := dagstore.New(cfg.MaxPending, cfg.PendingTTL, cfg.MaxParents)
	idx := conflict.New(func(v *vertex.Vertex) []conflict.ConflictKey {
		return []conflict.ConflictKey{conflict.ConflictKey(v.Payload)}
	})
	e := New(cfg, store, idx, transport, newPeers(3), nil)

	a := signedVertex(t, nil, []byte("slot-42"), 1)
	b := signedVertex(t, nil, []byte("slot-42"), 2)
	_, err := store.Insert(a)
	require.NoError(t, err)
	_, err = store.Insert(b)
	require.NoError(t, err)

	idx.Record(a)
	idx.Record(b)
	e.Admit(a, true)
	e.Admit(b, false)

	ctx := context.Background()
	for i := 0; i < 100 && !store.IsFinalized(a.ID()); i++ {
		require.NoError(t, e.RunRound(ctx, a.ID()))
	}
	require.True(t, store.IsFinalized(a.ID()))
	require.True(t, store.IsRejected(b.ID()))
}

func TestRunRoundDiscardsRoundOnMajorityUnknown(t *testing.T) {
	cfg := config.LocalConfig
	e, store := newTestEngine(cfg, &unanimousTransport{vote: VoteUnknown}, newPeers(3))

	v := signedVertex(t, nil, []byte("genesis"), 0)
	_, err := store.Insert(v)
	require.NoError(t, err)
	e.Admit(v, true)

	err = e.RunRound(context.Background(), v.ID())
	require.Error(t, err)
}

func TestAnswerQueryUnknownForUnadmitted(t *testing.T) {
	cfg := config.LocalConfig
	e, _ := newTestEngine(cfg, &unanimousTransport{vote: VotePreferred}, newPeers(3))
	require.Equal(t, VoteUnknown, e.AnswerQuery(ids.GenerateTestID()))
}
