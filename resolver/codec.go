package resolver

import (
	"encoding/binary"
	"fmt"

	"github.com/qudag/qudag/qudagerrors"
)

// WireVersion is the only version of the DarkRecord wire format this
// implementation speaks, mirroring vertex's Encode/Decode convention
// (vertex/wire.go).
const WireVersion = 1

// BinaryCodec encodes/decodes DarkRecord as: version:u8 | name_len:u16 |
// name | addr_len:u32 | address | pk_len:u32 | author_pk | not_before:u64
// | not_after:u64 | flags:u8 (bit0=ephemeral, bit1=revoked) |
// sig_len:u32 | signature.
type BinaryCodec struct{}

func (BinaryCodec) Encode(r *DarkRecord) ([]byte, error) {
	if len(r.Name) > 0xFFFF {
		return nil, fmt.Errorf("%w: name too long", qudagerrors.ErrMalformed)
	}
	buf := make([]byte, 0, 64+len(r.Name)+len(r.Address)+len(r.AuthorPK)+len(r.Signature))
	buf = append(buf, WireVersion)
	buf = appendU16(buf, uint16(len(r.Name)))
	buf = append(buf, r.Name...)
	buf = appendU32(buf, uint32(len(r.Address)))
	buf = append(buf, r.Address...)
	buf = appendU32(buf, uint32(len(r.AuthorPK)))
	buf = append(buf, r.AuthorPK...)
	buf = appendU64(buf, r.NotBefore)
	buf = appendU64(buf, r.NotAfter)
	var flags byte
	if r.Ephemeral {
		flags |= 1
	}
	if r.Revoked {
		flags |= 2
	}
	buf = append(buf, flags)
	buf = appendU32(buf, uint32(len(r.Signature)))
	buf = append(buf, r.Signature...)
	return buf, nil
}

func (BinaryCodec) Decode(b []byte) (*DarkRecord, error) {
	r := &DarkRecord{}
	if len(b) < 1 || b[0] != WireVersion {
		return nil, fmt.Errorf("%w: unsupported dark record wire version", qudagerrors.ErrMalformed)
	}
	off := 1

	nameLen, off, err := readU16(b, off)
	if err != nil {
		return nil, err
	}
	r.Name, off, err = readBytes(b, off, int(nameLen))
	if err != nil {
		return nil, err
	}
	name := r.Name

	addrLen, off, err := readU32(b, off)
	if err != nil {
		return nil, err
	}
	addrStr, off, err := readBytes(b, off, int(addrLen))
	if err != nil {
		return nil, err
	}
	r.Address = []byte(addrStr)

	pkLen, off, err := readU32(b, off)
	if err != nil {
		return nil, err
	}
	pkStr, off, err := readBytes(b, off, int(pkLen))
	if err != nil {
		return nil, err
	}
	r.AuthorPK = []byte(pkStr)

	r.NotBefore, off, err = readU64(b, off)
	if err != nil {
		return nil, err
	}
	r.NotAfter, off, err = readU64(b, off)
	if err != nil {
		return nil, err
	}

	if off >= len(b) {
		return nil, fmt.Errorf("%w: truncated flags", qudagerrors.ErrMalformed)
	}
	flags := b[off]
	off++
	r.Ephemeral = flags&1 != 0
	r.Revoked = flags&2 != 0

	sigLen, off, err := readU32(b, off)
	if err != nil {
		return nil, err
	}
	sigStr, _, err := readBytes(b, off, int(sigLen))
	if err != nil {
		return nil, err
	}
	r.Signature = []byte(sigStr)
	r.Name = name
	return r, nil
}

func appendU16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func readU16(b []byte, off int) (uint16, int, error) {
	if off+2 > len(b) {
		return 0, off, fmt.Errorf("%w: truncated u16", qudagerrors.ErrMalformed)
	}
	return binary.LittleEndian.Uint16(b[off:]), off + 2, nil
}

func readU32(b []byte, off int) (uint32, int, error) {
	if off+4 > len(b) {
		return 0, off, fmt.Errorf("%w: truncated u32", qudagerrors.ErrMalformed)
	}
	return binary.LittleEndian.Uint32(b[off:]), off + 4, nil
}

func readU64(b []byte, off int) (uint64, int, error) {
	if off+8 > len(b) {
		return 0, off, fmt.Errorf("%w: truncated u64", qudagerrors.ErrMalformed)
	}
	return binary.LittleEndian.Uint64(b[off:]), off + 8, nil
}

func readBytes(b []byte, off, n int) (string, int, error) {
	if off+n > len(b) {
		return "", off, fmt.Errorf("%w: truncated field", qudagerrors.ErrMalformed)
	}
	return string(b[off : off+n]), off + n, nil
}
