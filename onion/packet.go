package onion

import (
	"encoding/binary"
	"fmt"

	qcrypto "github.com/qudag/qudag/crypto"
	"github.com/qudag/qudag/qudagerrors"
)

// Command is the routing instruction carried in a packet header
// (spec.md §4.7).
type Command byte

const (
	CommandExtend Command = iota
	CommandRelay
	CommandEnd
)

// headerSize is the on-wire size of the fixed header bound as AEAD
// associated data: circuit_id:8 | command:1 | counter:8 (spec.md §6.2).
const headerSize = 8 + 1 + 8

// Packet is the fixed-size unit relayed hop-to-hop (I7). Wire layout:
// circuit_id:8 | command:1 | counter:8 | body (AEAD ciphertext, padded
// so the full frame is PacketSize bytes, spec.md §6.2).
type Packet struct {
	CircuitID CircuitId
	Counter   uint64
	Command   Command
	Body      []byte
}

// Header is the authenticated-but-not-encrypted associated data bound
// into every hop's AEAD layer.
type Header struct {
	CircuitID CircuitId
	Counter   uint64
	Command   Command
}

func (h Header) aad() []byte {
	out := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(out[0:8], h.CircuitID)
	out[8] = byte(h.Command)
	binary.LittleEndian.PutUint64(out[9:17], h.Counter)
	return out
}

func nonceFromCounter(counter uint64) []byte {
	nonce := make([]byte, qcrypto.AEADNonceSize)
	for i := 0; i < 8 && i < len(nonce); i++ {
		nonce[i] = byte(counter >> (8 * i))
	}
	return nonce
}

// SealForward seals payload for forward transmission, applying every
// hop's forward key from hop H down to hop 1 (spec.md §4.7 "on forward
// send"). The innermost plaintext is length-prefixed and padded so
// that after all H AEAD layers are applied, the Body leaving the
// origin is exactly packetSize-headerSize bytes, matching the header
// prepended on the wire by wire.EncodePacket to total packetSize
// bytes as it leaves the origin (I7). Each hop's AEAD tag adds
// AEADOverhead bytes that get stripped along with the layer it
// authenticates, so the packet shrinks by that amount at each hop from
// hop 1 to hop H,
// reaching exactly packetSize-headerSize-H*AEADOverhead bytes of
// padded plaintext once the exit hop peels the last layer — full
// restoration to one constant size at every intermediate hop would
// require a non-AEAD, fixed-width primitive (e.g. a stream cipher with
// a separate digest, as Tor's RELAY cells use); that substitution
// isn't grounded in the crypto facade this module builds on, so it is
// out of scope here.
func SealForward(circuit *Circuit, command Command, payload []byte, packetSize int) (*Packet, error) {
	counter := circuit.NextSendCounter()
	header := Header{CircuitID: circuit.ID, Counter: counter, Command: command}

	capacity := packetSize - headerSize - len(circuit.Keys)*qcrypto.AEADOverhead
	body, err := pad(payload, capacity)
	if err != nil {
		return nil, err
	}

	for i := len(circuit.Keys) - 1; i >= 0; i-- {
		sealed, err := qcrypto.AeadSeal(circuit.Keys[i].Forward, nonceFromCounter(counter), header.aad(), body)
		if err != nil {
			return nil, fmt.Errorf("onion: seal hop %d: %w", i, err)
		}
		body = sealed
	}

	return &Packet{CircuitID: circuit.ID, Counter: counter, Command: command, Body: body}, nil
}

// OpenAtHop peels one forward layer at a single relay using that hop's
// key (spec.md §4.7 "on receive at a hop"). A failed open is reported
// via ErrUnauthenticated and the caller must drop the packet silently
// (I7): no distinct error reaches the network.
func OpenAtHop(hopKeys HopKeys, p *Packet) ([]byte, error) {
	header := Header{CircuitID: p.CircuitID, Counter: p.Counter, Command: p.Command}
	pt, err := qcrypto.AeadOpen(hopKeys.Forward, nonceFromCounter(p.Counter), header.aad(), p.Body)
	if err != nil {
		return nil, qudagerrors.ErrUnauthenticated
	}
	return pt, nil
}

// OpenFinal peels the last forward layer at the exit hop (Command ==
// CommandEnd) and strips the padding SealForward applied at the
// origin, recovering the original application payload.
func OpenFinal(hopKeys HopKeys, p *Packet) ([]byte, error) {
	pt, err := OpenAtHop(hopKeys, p)
	if err != nil {
		return nil, err
	}
	return unpad(pt)
}

// SealBackward mirrors SealForward for the reverse direction (spec.md
// §4.7 "reverse direction mirrors with k_backward_i and inverse
// order"): the exit hop's layer (k_backward_H) goes on innermost, and
// hop 1's backward layer goes on last/outermost, so the origin peels
// hop 1 first. Only the origin's Circuit holds every hop's keys; a
// relay only ever has its own HopKeys, used via OpenBackwardAtHop.
func SealBackward(circuit *Circuit, payload []byte, packetSize int) (*Packet, error) {
	counter := circuit.NextRecvCounter()
	header := Header{CircuitID: circuit.ID, Counter: counter, Command: CommandRelay}

	capacity := packetSize - headerSize - len(circuit.Keys)*qcrypto.AEADOverhead
	body, err := pad(payload, capacity)
	if err != nil {
		return nil, err
	}

	for i := len(circuit.Keys) - 1; i >= 0; i-- {
		sealed, err := qcrypto.AeadSeal(circuit.Keys[i].Backward, nonceFromCounter(counter), header.aad(), body)
		if err != nil {
			return nil, fmt.Errorf("onion: seal backward hop %d: %w", i, err)
		}
		body = sealed
	}
	return &Packet{CircuitID: circuit.ID, Counter: counter, Command: CommandRelay, Body: body}, nil
}

// OpenBackwardAtHop peels one backward layer at a single relay.
func OpenBackwardAtHop(hopKeys HopKeys, p *Packet) ([]byte, error) {
	header := Header{CircuitID: p.CircuitID, Counter: p.Counter, Command: p.Command}
	pt, err := qcrypto.AeadOpen(hopKeys.Backward, nonceFromCounter(p.Counter), header.aad(), p.Body)
	if err != nil {
		return nil, qudagerrors.ErrUnauthenticated
	}
	return pt, nil
}

// OpenOrigin peels every layer of a backward-sealed reply at the
// circuit's origin, hop 1's (outermost) layer first and the exit hop's
// (innermost) layer last, recovering the original plaintext. The
// origin is the only party that holds every hop's key.
func OpenOrigin(circuit *Circuit, p *Packet) ([]byte, error) {
	body := p.Body
	var err error
	for i := 0; i < len(circuit.Keys); i++ {
		header := Header{CircuitID: p.CircuitID, Counter: p.Counter, Command: p.Command}
		body, err = qcrypto.AeadOpen(circuit.Keys[i].Backward, nonceFromCounter(p.Counter), header.aad(), body)
		if err != nil {
			return nil, qudagerrors.ErrUnauthenticated
		}
	}
	return unpad(body)
}

// pad appends a length-prefixed padding suffix so every packet is
// exactly size bytes, regardless of payload length (I7).
func pad(body []byte, size int) ([]byte, error) {
	if len(body)+4 > size {
		return nil, fmt.Errorf("%w: sealed body %d bytes exceeds packet size %d", qudagerrors.ErrMalformed, len(body), size)
	}
	out := make([]byte, size)
	var lenBytes [4]byte
	for i := 0; i < 4; i++ {
		lenBytes[i] = byte(len(body) >> (8 * i))
	}
	copy(out[:4], lenBytes[:])
	copy(out[4:], body)
	return out, nil
}

func unpad(padded []byte) ([]byte, error) {
	if len(padded) < 4 {
		return nil, qudagerrors.ErrMalformed
	}
	n := int(padded[0]) | int(padded[1])<<8 | int(padded[2])<<16 | int(padded[3])<<24
	if n < 0 || 4+n > len(padded) {
		return nil, qudagerrors.ErrMalformed
	}
	return padded[4 : 4+n], nil
}
