package vertex

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/qudag/qudag/qudagerrors"
)

// WireVersion is the only version of the Vertex wire format this
// implementation speaks (spec.md §6.2).
const WireVersion = 1

// encodePreimage produces (parent_count:u8 | parent_ids | timestamp:u64 |
// nonce:u64 | payload_len:u32 | payload | author_pk_len:u32 | author_pk),
// the exact bytes spec.md §3 says VertexId and the signature are computed
// over. Encode carries the same fields, but puts author_pk right after
// the version byte rather than last, and appends the signature.
func encodePreimage(v *Vertex) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(byte(len(v.Parents)))
	for _, p := range v.Parents {
		buf.Write(p[:])
	}
	writeU64(buf, v.Timestamp)
	writeU64(buf, v.Nonce)
	writeU32(buf, uint32(len(v.Payload)))
	buf.Write(v.Payload)
	writeU32(buf, uint32(len(v.AuthorPK)))
	buf.Write(v.AuthorPK)
	return buf.Bytes()
}

// Encode serializes v to the normative wire format of spec.md §6.2:
// version:u8=1 | author_pk_len:u32 | author_pk | parent_count:u8 |
// parent_ids | timestamp:u64 | nonce:u64 | payload_len:u32 | payload |
// signature_len:u32 | signature.
func Encode(v *Vertex) ([]byte, error) {
	if len(v.Parents) > 255 {
		return nil, fmt.Errorf("%w: parent_count %d exceeds u8", qudagerrors.ErrMalformed, len(v.Parents))
	}
	buf := new(bytes.Buffer)
	buf.WriteByte(WireVersion)
	writeU32(buf, uint32(len(v.AuthorPK)))
	buf.Write(v.AuthorPK)
	buf.WriteByte(byte(len(v.Parents)))
	for _, p := range v.Parents {
		buf.Write(p[:])
	}
	writeU64(buf, v.Timestamp)
	writeU64(buf, v.Nonce)
	writeU32(buf, uint32(len(v.Payload)))
	buf.Write(v.Payload)
	writeU32(buf, uint32(len(v.Signature)))
	buf.Write(v.Signature)
	return buf.Bytes(), nil
}

// Decode parses the wire format Encode produces. It never panics on
// truncated or adversarial input; all failures collapse to ErrMalformed.
func Decode(b []byte) (*Vertex, error) {
	r := bytes.NewReader(b)

	version, err := r.ReadByte()
	if err != nil || version != WireVersion {
		return nil, fmt.Errorf("%w: bad version", qudagerrors.ErrMalformed)
	}

	pkLen, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: author_pk_len: %v", qudagerrors.ErrMalformed, err)
	}
	authorPK, err := readN(r, int(pkLen))
	if err != nil {
		return nil, fmt.Errorf("%w: author_pk: %v", qudagerrors.ErrMalformed, err)
	}

	parentCount, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: parent_count: %v", qudagerrors.ErrMalformed, err)
	}
	parents := make([]VertexId, parentCount)
	for i := range parents {
		raw, err := readN(r, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: parent_ids: %v", qudagerrors.ErrMalformed, err)
		}
		parents[i] = ids.ID(toArray32(raw))
	}

	timestamp, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", qudagerrors.ErrMalformed, err)
	}
	nonce, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", qudagerrors.ErrMalformed, err)
	}

	payloadLen, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: payload_len: %v", qudagerrors.ErrMalformed, err)
	}
	payload, err := readN(r, int(payloadLen))
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", qudagerrors.ErrMalformed, err)
	}

	sigLen, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: signature_len: %v", qudagerrors.ErrMalformed, err)
	}
	sig, err := readN(r, int(sigLen))
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", qudagerrors.ErrMalformed, err)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: trailing bytes", qudagerrors.ErrMalformed)
	}

	return &Vertex{
		Parents:   parents,
		Payload:   payload,
		AuthorPK:  authorPK,
		Timestamp: timestamp,
		Nonce:     nonce,
		Signature: sig,
	}, nil
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
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
