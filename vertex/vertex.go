// Package vertex implements the DAG's immutable data unit (spec.md §3):
// a signed vertex referencing 1..MAX_PARENTS earlier vertices. VertexId
// reuses github.com/luxfi/ids.ID, the same 32-byte content-addressed
// identifier the teacher uses throughout engine/dag.
package vertex

import (
	"fmt"

	"github.com/luxfi/ids"

	qcrypto "github.com/qudag/qudag/crypto"
)

// VertexId is the stable, collision-resistant handle for a Vertex: the
// BLAKE3 hash of the canonical encoding of (parents, payload, timestamp,
// author_public_key, nonce) (spec.md §3).
type VertexId = ids.ID

// MaxParents bounds the number of parents a non-genesis vertex may cite.
const MaxParents = 8

// Vertex is immutable after Admitted (spec.md §3 lifecycle).
type Vertex struct {
	Parents   []VertexId
	Payload   []byte
	AuthorPK  []byte // post-quantum signature public key
	Timestamp uint64 // monotonic author-local
	Nonce     uint64
	Signature []byte // post-quantum signature over (parents, payload, timestamp, author_pk, nonce)

	id    VertexId
	idSet bool
}

// New builds an unsigned Vertex. Call Sign before admission.
func New(parents []VertexId, payload, authorPK []byte, timestamp, nonce uint64) *Vertex {
	return &Vertex{
		Parents:   parents,
		Payload:   payload,
		AuthorPK:  authorPK,
		Timestamp: timestamp,
		Nonce:     nonce,
	}
}

// preimage is the exact byte string both the signature and the id are
// computed over: the canonical encoding minus the signature field.
func (v *Vertex) preimage() []byte {
	return encodePreimage(v)
}

// Sign computes the vertex's signature over its preimage. It does not
// verify that authorSK corresponds to v.AuthorPK; callers that accept
// vertices from peers must call Verify via the store's admission path
// instead of trusting Sign.
func (v *Vertex) Sign(authorSK []byte) error {
	sig, err := qcrypto.SigSign(authorSK, v.preimage())
	if err != nil {
		return fmt.Errorf("vertex: sign: %w", err)
	}
	v.Signature = sig
	return nil
}

// Verify checks the post-quantum signature over the vertex against its
// stated author key (I2). It never distinguishes a malformed vertex from
// a bad signature beyond the single bool return (spec.md §7).
func (v *Vertex) Verify() bool {
	return qcrypto.SigVerify(v.AuthorPK, v.preimage(), v.Signature)
}

// ID returns (and caches) the vertex's content-addressed id.
func (v *Vertex) ID() VertexId {
	if v.idSet {
		return v.id
	}
	v.id = ids.ID(qcrypto.Hash(v.preimage()))
	v.idSet = true
	return v.id
}

// Validate checks the structural invariants independent of signature
// verification: parent count bounds and a non-empty author key.
func (v *Vertex) Validate(isGenesis bool) error {
	if !isGenesis && len(v.Parents) < 1 {
		return fmt.Errorf("vertex: non-genesis vertex must cite at least one parent")
	}
	if len(v.Parents) > MaxParents {
		return fmt.Errorf("vertex: parent count %d exceeds MAX_PARENTS=%d", len(v.Parents), MaxParents)
	}
	if len(v.AuthorPK) == 0 {
		return fmt.Errorf("vertex: missing author public key")
	}
	return nil
}
