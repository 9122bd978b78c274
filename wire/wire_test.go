package wire

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/qudag/qudag/avalanche"
	"github.com/qudag/qudag/onion"
)

func TestPacketRoundTrip(t *testing.T) {
	p := &onion.Packet{
		CircuitID: 0xdeadbeef,
		Counter:   42,
		Command:   onion.CommandRelay,
		Body:      []byte("sealed-layer-bytes"),
	}

	encoded, err := EncodePacket(p)
	require.NoError(t, err)

	decoded, err := DecodePacket(encoded)
	require.NoError(t, err)
	require.Equal(t, p.CircuitID, decoded.CircuitID)
	require.Equal(t, p.Counter, decoded.Counter)
	require.Equal(t, p.Command, decoded.Command)
	require.Equal(t, p.Body, decoded.Body)

	reencoded, err := EncodePacket(decoded)
	require.NoError(t, err)
	require.Equal(t, encoded, reencoded)
}

func TestDecodePacketRejectsTruncated(t *testing.T) {
	_, err := DecodePacket(make([]byte, 10))
	require.Error(t, err)
}

func TestQueryReplyRoundTrip(t *testing.T) {
	vertexID := ids.GenerateTestID()

	query := EncodeQuery(vertexID)
	gotID, err := DecodeQuery(query)
	require.NoError(t, err)
	require.Equal(t, vertexID, gotID)

	reply, err := EncodeReply(vertexID, avalanche.VotePreferred)
	require.NoError(t, err)
	gotID, gotVote, err := DecodeReply(reply)
	require.NoError(t, err)
	require.Equal(t, vertexID, gotID)
	require.Equal(t, avalanche.VotePreferred, gotVote)
}

func TestDecodeReplyRejectsBadAnswerByte(t *testing.T) {
	reply, err := EncodeReply(ids.GenerateTestID(), avalanche.VotePreferred)
	require.NoError(t, err)
	reply[32] = 99
	_, _, err = DecodeReply(reply)
	require.Error(t, err)
}

func TestDecodeQueryRejectsWrongLength(t *testing.T) {
	_, err := DecodeQuery([]byte("too short"))
	require.Error(t, err)
}
