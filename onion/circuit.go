// Package onion implements the Circuit Builder (spec.md §4.6) and Onion
// Packet Processor (spec.md §4.7): layered post-quantum handshakes
// building a forward path, and fixed-size packet peeling/forwarding
// with timing and replay defenses. Grounded on the teacher's
// qzmq.Session (qzmq/qzmq.go) for the per-hop handshake/AEAD/key-
// rotation shape, generalized from a single hop to a full circuit and
// from placeholder crypto to the real KEM/AEAD facade in package
// crypto.
package onion

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/luxfi/ids"

	"github.com/qudag/qudag/config"
	qcrypto "github.com/qudag/qudag/crypto"
	"github.com/qudag/qudag/log"
	"github.com/qudag/qudag/qudagerrors"
)

// CircuitId identifies a built circuit. spec.md §3/§6.2 specify this as
// a plain u64, distinct from the 32-byte content-addressed ids.ID used
// for vertices and dark records — a circuit has no content to address,
// only an identity scoped to the node that built it.
type CircuitId = uint64

// State is a Circuit's lifecycle stage.
type State int

const (
	StateBuilding State = iota
	StateReady
	StateFailed
	StateClosed
)

// PeerInfo is a candidate relay, carrying the metadata the builder uses
// for geographic/AS diversity selection (spec.md §4.6 step 1).
type PeerInfo struct {
	NodeID       ids.NodeID
	KEMPublicKey []byte
	ASNumber     string
	Region       string
}

// HopKeys holds the independent forward/backward direction keys derived
// for one hop (spec.md §4.6 step 2).
type HopKeys struct {
	Forward  []byte
	Backward []byte
}

// Circuit is a built path of hops ready to carry onion packets.
type Circuit struct {
	ID      CircuitId
	Hops    []PeerInfo
	Keys    []HopKeys
	State   State
	Created time.Time
	Expires time.Time
	MaxCells uint64
	cellsUsed uint64
	sendCounter uint64
	recvCounter uint64
}

// Expired reports whether the circuit has exceeded its TTL or its
// MAX_CELLS usage budget (spec.md §4.6 step 3).
func (c *Circuit) Expired(now time.Time) bool {
	return now.After(c.Expires) || c.cellsUsed >= c.MaxCells
}

// NextSendCounter returns the next per-circuit send counter, used as
// the AEAD nonce material for forward packets (spec.md §4.7).
func (c *Circuit) NextSendCounter() uint64 {
	v := c.sendCounter
	c.sendCounter++
	c.cellsUsed++
	return v
}

// NextRecvCounter mirrors NextSendCounter for the reverse direction.
func (c *Circuit) NextRecvCounter() uint64 {
	v := c.recvCounter
	c.recvCounter++
	return v
}

// RoutingTable supplies candidate relays for circuit construction.
type RoutingTable interface {
	// SelectHops returns h distinct peers, preferring geographic/AS
	// diversity when metadata is present (spec.md §4.6 step 1).
	SelectHops(h int, exclude map[ids.NodeID]struct{}) ([]PeerInfo, error)
	// MarkFailed decrements a peer's reputation after a handshake
	// failure (spec.md §4.6 step 4).
	MarkFailed(peer ids.NodeID)
}

// HandshakeTransport delivers a KEM handshake cell to a circuit's first
// hop and returns that hop's (onion-wrapped, for multi-hop extension)
// response. Intermediate relaying is the coordinator/packet-processor's
// concern; the builder only sees the logical request/response pair,
// mirroring how the teacher's Session.Handshake abstracts the wire via
// an io.ReadWriter parameter.
type HandshakeTransport interface {
	Handshake(ctx context.Context, firstHop PeerInfo, wrapped []byte) ([]byte, error)
}

// Builder constructs Circuits (spec.md §4.6).
type Builder struct {
	cfg       config.Config
	routing   RoutingTable
	transport HandshakeTransport
	log       log.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(cfg config.Config, routing RoutingTable, transport HandshakeTransport, logger log.Logger) *Builder {
	if logger == nil {
		logger = log.New("onion")
	}
	return &Builder{cfg: cfg, routing: routing, transport: transport, log: logger}
}

// Build constructs a circuit of hops hops long (0 means DefaultHops; a
// count outside [MinHops,MaxHops] is an error, not clamped).
func (b *Builder) Build(ctx context.Context, hops int) (*Circuit, error) {
	if hops == 0 {
		hops = b.cfg.DefaultHops
	}
	if hops < b.cfg.MinHops || hops > b.cfg.MaxHops {
		return nil, fmt.Errorf("onion: hop count %d outside [%d,%d]", hops, b.cfg.MinHops, b.cfg.MaxHops)
	}

	peers, err := b.routing.SelectHops(hops, nil)
	if err != nil {
		return nil, fmt.Errorf("onion: select hops: %w", err)
	}
	if len(peers) != hops {
		return nil, fmt.Errorf("onion: routing table returned %d peers, wanted %d", len(peers), hops)
	}

	id, err := newCircuitID()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	circuit := &Circuit{
		ID:       id,
		Hops:     peers,
		Keys:     make([]HopKeys, 0, hops),
		State:    StateBuilding,
		Created:  now,
		Expires:  now.Add(b.cfg.CircuitTTL),
		MaxCells: b.cfg.MaxCells,
	}

	const maxRetriesPerHop = 3
	exclude := make(map[ids.NodeID]struct{}, hops)
	for i := 0; i < hops; i++ {
		peer := circuit.Hops[i]
		exclude[peer.NodeID] = struct{}{}

		keys, err := b.handshakeHop(ctx, circuit, i, peer, maxRetriesPerHop)
		if err != nil {
			circuit.State = StateFailed
			zeroizeKeys(circuit.Keys)
			return nil, fmt.Errorf("onion: hop %d handshake: %w", i, err)
		}
		circuit.Keys = append(circuit.Keys, keys)
	}

	circuit.State = StateReady
	return circuit, nil
}

// handshakeHop performs the KEM handshake for hop i, retrying with a
// freshly selected peer up to maxRetries times on failure (spec.md
// §4.6 step 4).
func (b *Builder) handshakeHop(ctx context.Context, circuit *Circuit, i int, peer PeerInfo, maxRetries int) (HopKeys, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		keys, err := b.attemptHandshake(ctx, circuit, i, peer)
		if err == nil {
			return keys, nil
		}
		lastErr = err
		b.routing.MarkFailed(peer.NodeID)
		b.log.Debug("onion: hop handshake failed, retrying", "hop", i, "peer", peer.NodeID, "attempt", attempt, "error", err)

		replacement, err2 := b.routing.SelectHops(1, map[ids.NodeID]struct{}{peer.NodeID: {}})
		if err2 != nil || len(replacement) == 0 {
			break
		}
		peer = replacement[0]
		circuit.Hops[i] = peer
	}
	return HopKeys{}, fmt.Errorf("%w: %v", qudagerrors.ErrTimeout, lastErr)
}

// attemptHandshake encapsulates to peer's KEM key, tunnels the
// ciphertext through the already-established prefix, and derives the
// hop's direction keys from the resulting shared secret (spec.md §4.6
// step 2).
func (b *Builder) attemptHandshake(ctx context.Context, circuit *Circuit, i int, peer PeerInfo) (HopKeys, error) {
	ct, ss, err := qcrypto.KemEncapsulate(peer.KEMPublicKey)
	if err != nil {
		return HopKeys{}, fmt.Errorf("kem encapsulate: %w", err)
	}
	defer ss.Zeroize()

	wrapped, err := wrapThroughPrefix(circuit.Keys, ct, i)
	if err != nil {
		return HopKeys{}, err
	}

	if _, err := b.transport.Handshake(ctx, circuit.Hops[0], wrapped); err != nil {
		return HopKeys{}, fmt.Errorf("transport: %w", err)
	}

	forward, backward, err := qcrypto.DeriveHopKeys(ss.Bytes(), i)
	if err != nil {
		return HopKeys{}, fmt.Errorf("derive hop keys: %w", err)
	}
	return HopKeys{Forward: forward, Backward: backward}, nil
}

// wrapThroughPrefix onion-encrypts payload under every already-
// established hop's forward key, innermost (the new hop) first, so
// only the final recipient in the existing prefix exposes it further.
// With no established hops yet (i==0) this is a no-op. newHopIndex is
// the index of the hop currently being extended to (the caller's loop
// variable i in attemptHandshake): each established hop j is wrapped
// through exactly once per newHopIndex, so the (newHopIndex, j) pair
// is unique for the lifetime of a circuit and gives every seal under a
// given established key its own nonce rather than reusing nonce zero.
func wrapThroughPrefix(established []HopKeys, payload []byte, newHopIndex int) ([]byte, error) {
	out := payload
	for j := len(established) - 1; j >= 0; j-- {
		nonce := wrapNonce(newHopIndex, j)
		sealed, err := qcrypto.AeadSeal(established[j].Forward, nonce, nil, out)
		if err != nil {
			return nil, fmt.Errorf("wrap prefix hop %d: %w", j, err)
		}
		out = sealed
	}
	return out, nil
}

// wrapNonce derives a distinct AEAD nonce for each (newHopIndex,
// establishedHopIndex) pair seen during handshake prefix-wrapping.
func wrapNonce(newHopIndex, establishedHopIndex int) []byte {
	nonce := make([]byte, qcrypto.AEADNonceSize)
	binary.LittleEndian.PutUint32(nonce[0:4], uint32(newHopIndex))
	binary.LittleEndian.PutUint32(nonce[4:8], uint32(establishedHopIndex))
	return nonce
}

func newCircuitID() (CircuitId, error) {
	var b [8]byte
	if err := qcrypto.RNG(b[:]); err != nil {
		return 0, fmt.Errorf("onion: generate circuit id: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func zeroizeKeys(keys []HopKeys) {
	for _, k := range keys {
		for i := range k.Forward {
			k.Forward[i] = 0
		}
		for i := range k.Backward {
			k.Backward[i] = 0
		}
	}
}
