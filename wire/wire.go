// Package wire holds the byte-for-byte encode/decode functions for the
// over-the-network message shapes spec.md §6.2 defines that don't
// already own a codec in their home package (Vertex has
// vertex.Encode/Decode, DarkRecord has resolver.BinaryCodec). It covers
// OnionPacket and the PreferenceQuery/Reply pair exchanged by the
// QR-Avalanche Transport, little-endian like vertex/wire.go; these
// layouts are fixed-width and carry no length prefixes.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/qudag/qudag/avalanche"
	"github.com/qudag/qudag/onion"
	"github.com/qudag/qudag/qudagerrors"
)

// EncodePacket serializes an onion Packet to the normative fixed-size
// wire layout of spec.md §6.2: circuit_id:u64 | command:u8 | counter:u64
// | body, a 17-byte header plus Body. A packet fresh from SealForward or
// SealBackward frames to exactly packetSize bytes; each peeled layer
// leaves Body AEADOverhead bytes shorter. The
// mac is already the tail of Body once every AEAD layer has been
// applied (AeadSeal appends it) and Body's length is implied by the
// frame's total length, so neither is framed as a separate field.
func EncodePacket(p *onion.Packet) ([]byte, error) {
	buf := new(bytes.Buffer)
	writeU64(buf, p.CircuitID)
	buf.WriteByte(byte(p.Command))
	writeU64(buf, p.Counter)
	buf.Write(p.Body)
	return buf.Bytes(), nil
}

// DecodePacket parses the layout EncodePacket produces. All failures
// collapse to ErrMalformed; a truncated body never panics.
func DecodePacket(b []byte) (*onion.Packet, error) {
	r := bytes.NewReader(b)

	circuitID, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("%w: circuit_id: %v", qudagerrors.ErrMalformed, err)
	}

	commandByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: command: %v", qudagerrors.ErrMalformed, err)
	}

	counter, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("%w: counter: %v", qudagerrors.ErrMalformed, err)
	}

	body, err := readN(r, r.Len())
	if err != nil {
		return nil, fmt.Errorf("%w: body: %v", qudagerrors.ErrMalformed, err)
	}

	return &onion.Packet{
		CircuitID: circuitID,
		Counter:   counter,
		Command:   onion.Command(commandByte),
		Body:      body,
	}, nil
}

// EncodeQuery serializes a PreferenceQuery: vertex_id:32 (spec.md §6.2).
func EncodeQuery(vertexID avalanche.VertexId) []byte {
	out := make([]byte, 32)
	copy(out, vertexID[:])
	return out
}

// DecodeQuery parses the layout EncodeQuery produces.
func DecodeQuery(b []byte) (avalanche.VertexId, error) {
	if len(b) != 32 {
		return avalanche.VertexId{}, fmt.Errorf("%w: query must be 32 bytes, got %d", qudagerrors.ErrMalformed, len(b))
	}
	return ids.ID(toArray32(b)), nil
}

// answer codes per spec.md §6.2: 0=no, 1=yes, 2=unknown. These do not
// match avalanche.Vote's zero-value ordering (VoteUnknown=0), so the
// two are mapped explicitly rather than cast.
const (
	answerNo      byte = 0
	answerYes     byte = 1
	answerUnknown byte = 2
)

func voteToAnswer(vote avalanche.Vote) (byte, error) {
	switch vote {
	case avalanche.VoteNotPreferred:
		return answerNo, nil
	case avalanche.VotePreferred:
		return answerYes, nil
	case avalanche.VoteUnknown:
		return answerUnknown, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized vote %d", qudagerrors.ErrMalformed, vote)
	}
}

func answerToVote(answer byte) (avalanche.Vote, error) {
	switch answer {
	case answerNo:
		return avalanche.VoteNotPreferred, nil
	case answerYes:
		return avalanche.VotePreferred, nil
	case answerUnknown:
		return avalanche.VoteUnknown, nil
	default:
		return avalanche.VoteUnknown, fmt.Errorf("%w: bad answer byte %d", qudagerrors.ErrMalformed, answer)
	}
}

// EncodeReply serializes a PreferenceReply: vertex_id:32 | answer:u8 ∈
// {0=no,1=yes,2=unknown} (spec.md §6.2).
func EncodeReply(vertexID avalanche.VertexId, vote avalanche.Vote) ([]byte, error) {
	answer, err := voteToAnswer(vote)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 33)
	copy(out, vertexID[:])
	out[32] = answer
	return out, nil
}

// DecodeReply parses the layout EncodeReply produces.
func DecodeReply(b []byte) (avalanche.VertexId, avalanche.Vote, error) {
	if len(b) != 33 {
		return avalanche.VertexId{}, avalanche.VoteUnknown, fmt.Errorf("%w: reply must be 33 bytes, got %d", qudagerrors.ErrMalformed, len(b))
	}
	vote, err := answerToVote(b[32])
	if err != nil {
		return avalanche.VertexId{}, avalanche.VoteUnknown, err
	}
	return ids.ID(toArray32(b[:32])), vote, nil
}

func toArray32(b []byte) [32]byte {
	var out [32]byte
	copy(out[:], b)
	return out
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	b, err := readN(r, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	b, err := readN(r, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func readN(r *bytes.Reader, n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, fmt.Errorf("short read: want %d have %d", n, r.Len())
	}
	out := make([]byte, n)
	if _, err := r.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}
