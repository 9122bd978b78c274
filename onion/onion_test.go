package onion

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/qudag/qudag/config"
	qcrypto "github.com/qudag/qudag/crypto"
)

type fakeRoutingTable struct {
	peers []PeerInfo
}

func (f *fakeRoutingTable) SelectHops(h int, exclude map[ids.NodeID]struct{}) ([]PeerInfo, error) {
	out := make([]PeerInfo, 0, h)
	for _, p := range f.peers {
		if _, excluded := exclude[p.NodeID]; excluded {
			continue
		}
		out = append(out, p)
		if len(out) == h {
			break
		}
	}
	return out, nil
}

func (f *fakeRoutingTable) MarkFailed(ids.NodeID) {}

type fakeHandshakeTransport struct{}

func (fakeHandshakeTransport) Handshake(ctx context.Context, firstHop PeerInfo, wrapped []byte) ([]byte, error) {
	return nil, nil
}

func newFakePeer(t *testing.T) PeerInfo {
	t.Helper()
	kp, err := qcrypto.KemKeygen()
	require.NoError(t, err)
	return PeerInfo{NodeID: ids.GenerateTestNodeID(), KEMPublicKey: kp.PublicKey}
}

func TestBuildCircuitReachesReady(t *testing.T) {
	cfg := config.Default()
	peers := []PeerInfo{newFakePeer(t), newFakePeer(t), newFakePeer(t)}
	builder := NewBuilder(cfg, &fakeRoutingTable{peers: peers}, fakeHandshakeTransport{}, nil)

	circuit, err := builder.Build(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, StateReady, circuit.State)
	require.Len(t, circuit.Keys, 3)
	for _, k := range circuit.Keys {
		require.Len(t, k.Forward, qcrypto.AEADKeySize)
		require.Len(t, k.Backward, qcrypto.AEADKeySize)
		require.NotEqual(t, k.Forward, k.Backward)
	}
}

func TestBuildCircuitRejectsOutOfRangeHopCount(t *testing.T) {
	cfg := config.Default()
	builder := NewBuilder(cfg, &fakeRoutingTable{}, fakeHandshakeTransport{}, nil)

	_, err := builder.Build(context.Background(), 1)
	require.Error(t, err)
}

func buildTestCircuit(t *testing.T, hops int) *Circuit {
	t.Helper()
	cfg := config.Default()
	peers := make([]PeerInfo, hops)
	for i := range peers {
		peers[i] = newFakePeer(t)
	}
	builder := NewBuilder(cfg, &fakeRoutingTable{peers: peers}, fakeHandshakeTransport{}, nil)
	circuit, err := builder.Build(context.Background(), hops)
	require.NoError(t, err)
	return circuit
}

func TestSealForwardAndPeelAtEachHop(t *testing.T) {
	circuit := buildTestCircuit(t, 3)
	packetSize := 1280

	packet, err := SealForward(circuit, CommandEnd, []byte("hello exit"), packetSize)
	require.NoError(t, err)
	require.Len(t, packet.Body, packetSize-headerSize)

	// hop 1 peels its layer.
	afterHop1, err := OpenAtHop(circuit.Keys[0], packet)
	require.NoError(t, err)
	packet.Body = afterHop1
	require.Len(t, packet.Body, packetSize-headerSize-qcrypto.AEADOverhead)

	// hop 2 peels its layer.
	afterHop2, err := OpenAtHop(circuit.Keys[1], packet)
	require.NoError(t, err)
	packet.Body = afterHop2

	// hop 3 (exit) peels the final layer and recovers the payload.
	payload, err := OpenFinal(circuit.Keys[2], packet)
	require.NoError(t, err)
	require.Equal(t, []byte("hello exit"), payload)
}

func TestOpenAtHopRejectsTamperedBody(t *testing.T) {
	circuit := buildTestCircuit(t, 2)
	packet, err := SealForward(circuit, CommandRelay, []byte("data"), 1280)
	require.NoError(t, err)

	packet.Body[0] ^= 0xFF
	_, err = OpenAtHop(circuit.Keys[0], packet)
	require.Error(t, err)
}

func TestSealBackwardAndOpenOrigin(t *testing.T) {
	circuit := buildTestCircuit(t, 3)
	packetSize := 1280

	reply, err := SealBackward(circuit, []byte("reply payload"), packetSize)
	require.NoError(t, err)

	got, err := OpenOrigin(circuit, reply)
	require.NoError(t, err)
	require.Equal(t, []byte("reply payload"), got)
}

func TestReplayWindowRejectsDuplicate(t *testing.T) {
	w := NewReplayWindow(8)
	var id CircuitId = 1

	require.True(t, w.CheckAndRecord(id, 1))
	require.False(t, w.CheckAndRecord(id, 1))
	require.True(t, w.CheckAndRecord(id, 2))
}

func TestReplayWindowEvictsOldest(t *testing.T) {
	w := NewReplayWindow(2)
	var id CircuitId = 1

	require.True(t, w.CheckAndRecord(id, 1))
	require.True(t, w.CheckAndRecord(id, 2))
	require.True(t, w.CheckAndRecord(id, 3))
	require.Equal(t, 2, w.Len())

	// counter 1 was evicted, so it is accepted again as if new.
	require.True(t, w.CheckAndRecord(id, 1))
}

func TestRandomDelayBounded(t *testing.T) {
	max := 5 * time.Millisecond
	for i := 0; i < 20; i++ {
		d := RandomDelay(max)
		require.True(t, d >= 0 && d <= max)
	}
}

func TestCoverTrafficTickerTicks(t *testing.T) {
	count := 0
	stop := CoverTrafficTicker(2*time.Millisecond, func() { count++ })
	time.Sleep(25 * time.Millisecond)
	stop()
	require.Greater(t, count, 0)
}
