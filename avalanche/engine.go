// Package avalanche implements the QR-Avalanche Engine (spec.md §4.4):
// per-vertex preference and confidence tracked via repeated sampled
// polling of the peer set, converging to finality under I3-I5. The
// sampling-round shape is grounded on the teacher's poll.Set /
// earlyTermPoll pattern (engine/poll/poll.go) and its
// consensus/focus/unary_confidence.go EMA-like strength tracking;
// the exact update rule (exponential moving average, alpha-scaled
// quorum, sibling flip) follows spec.md §4.4 directly since the
// teacher's Snowball variant does not use EMA confidence.
package avalanche

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/luxfi/ids"

	"github.com/qudag/qudag/conflict"
	"github.com/qudag/qudag/config"
	"github.com/qudag/qudag/dagstore"
	"github.com/qudag/qudag/log"
	"github.com/qudag/qudag/qudagerrors"
	"github.com/qudag/qudag/utils/sampler"
	"github.com/qudag/qudag/vertex"
)

// VertexId aliases the content-addressed vertex identifier.
type VertexId = vertex.VertexId

// Vote is a peer's answer to a PreferenceQuery.
type Vote int

const (
	// VoteUnknown counts as neither yes nor no (spec.md §4.4 step 7).
	VoteUnknown Vote = iota
	VotePreferred
	VoteNotPreferred
)

// Transport issues PreferenceQuery to a peer and returns its vote,
// or an error if the query could not be delivered (retried by the
// engine per spec.md's failure semantics). Supplied by the networking
// layer; the engine only depends on this narrow interface.
type Transport interface {
	Query(ctx context.Context, peer ids.NodeID, v VertexId) (Vote, error)
}

// PeerSet supplies the current peer membership to sample from.
type PeerSet interface {
	Peers() []ids.NodeID
}

// state is the per-vertex consensus record (spec.md §3 Preference).
type state struct {
	preferred            bool
	confidence           float64
	consecutiveSuccesses uint32
	firstSeenLocally      bool
	stuckDeadline         time.Time
	finalized             bool
	rejected              bool
}

// Engine runs QR-Avalanche rounds over vertices admitted into a
// dagstore.Store, using a conflict.Index to resolve ConflictSets.
type Engine struct {
	mu sync.Mutex

	cfg       config.Config
	store     *dagstore.Store
	conflicts *conflict.Index
	transport Transport
	peers     PeerSet
	log       log.Logger

	states map[VertexId]*state
}

// New constructs an Engine. log may be nil, in which case a no-op
// logger is used (matching the teacher's convention of never leaving
// log.Logger nil-deref-able).
func New(cfg config.Config, store *dagstore.Store, conflicts *conflict.Index, transport Transport, peers PeerSet, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.New("avalanche")
	}
	return &Engine{
		cfg:       cfg,
		store:     store,
		conflicts: conflicts,
		transport: transport,
		peers:     peers,
		log:       logger,
		states:    make(map[VertexId]*state),
	}
}

// Admit registers v for consensus tracking, applying spec.md §4.4 steps
// 1-2: singleton ConflictSets start preferred with confidence 0.5;
// non-singleton members start preferred only if first-seen locally and
// no sibling already has positive confidence.
func (e *Engine) Admit(v *vertex.Vertex, firstSeenLocally bool) {
	id := v.ID()
	setID := e.conflicts.Record(v)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.states[id]; exists {
		return
	}

	st := &state{firstSeenLocally: firstSeenLocally}

	if e.conflicts.IsSingleton(id) {
		st.preferred = true
		st.confidence = 0.5
	} else {
		siblings := e.conflicts.Siblings(id)
		anySiblingConfident := false
		for sib := range siblings {
			if s, ok := e.states[sib]; ok && s.confidence > 0 {
				anySiblingConfident = true
				break
			}
		}
		st.preferred = firstSeenLocally && !anySiblingConfident
	}

	st.stuckDeadline = time.Now().Add(e.cfg.FinalityTimeout)
	e.states[id] = st
	_ = setID
}

// RunRound executes one sampling round for v (spec.md §4.4 steps 3-6).
func (e *Engine) RunRound(ctx context.Context, id VertexId) error {
	e.mu.Lock()
	st, ok := e.states[id]
	if !ok {
		e.mu.Unlock()
		return qudagerrors.ErrNotFound
	}
	if st.finalized || st.rejected {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	peers := e.peers.Peers()
	n := len(peers)
	if n == 0 {
		return nil
	}
	k := e.cfg.K
	if k > n {
		k = n
	}
	sampled, err := e.sample(peers, k)
	if err != nil {
		return fmt.Errorf("avalanche: sample peers: %w", err)
	}

	yes, unknown := e.poll(ctx, sampled, id)
	if unknown*2 > len(sampled) {
		// Round discarded per spec.md's tie-break/edge-case rule;
		// caller retries after backoff.
		return qudagerrors.ErrTimeout
	}

	ratio := float64(yes) / float64(len(sampled))
	alphaCount := e.cfg.AlphaCount(n)

	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok = e.states[id]
	if !ok || st.finalized || st.rejected {
		return nil
	}

	success := yes >= alphaCount
	if success {
		st.consecutiveSuccesses++
	} else {
		st.consecutiveSuccesses = 0
	}
	// Either way confidence moves toward the observed ratio by EMA; on
	// success that's convergence, on failure it's decay (spec.md §4.4 step 4).
	st.confidence += e.cfg.ConfidenceLearningRate * (ratio - st.confidence)

	if success {
		e.flipSiblingsLocked(id, st)
	}

	if st.consecutiveSuccesses >= e.cfg.Beta && st.confidence >= e.cfg.FinalityThreshold {
		e.finalizeLocked(id, st)
	}

	return nil
}

// flipSiblingsLocked implements spec.md §4.4 step 5: if v just passed
// alpha, any sibling currently preferred loses preference and resets
// its streak, and v becomes preferred. v is marked preferred even when
// no sibling was preferred; v's own streak is left as it is.
func (e *Engine) flipSiblingsLocked(id VertexId, st *state) {
	siblings := e.conflicts.Siblings(id)
	for sib := range siblings {
		sibState, ok := e.states[sib]
		if !ok || !sibState.preferred {
			continue
		}
		sibState.preferred = false
		sibState.consecutiveSuccesses = 0
	}
	st.preferred = true
}

// finalizeLocked moves id to Finalized and every ConflictSet sibling to
// Rejected (I4, I5), provided every ancestor is already settled.
// Finality is announced once; a re-entrant call is a no-op.
func (e *Engine) finalizeLocked(id VertexId, st *state) {
	if st.finalized {
		return
	}
	for _, ancestor := range e.store.Ancestors(id, -1) {
		if !e.store.IsFinalized(ancestor) && !e.store.IsRejected(ancestor) {
			return
		}
	}

	st.finalized = true
	e.store.MarkFinalized(id)

	losers := e.conflicts.MarkRejectedExcept(id)
	for loser := range losers {
		if loserState, ok := e.states[loser]; ok {
			loserState.rejected = true
		}
		e.store.MarkRejected(loser)
	}
}

// Stuck reports whether v has exceeded finality_timeout without
// reaching Finalized or Rejected (spec.md §4.4 failure semantics).
func (e *Engine) Stuck(id VertexId, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[id]
	if !ok || st.finalized || st.rejected {
		return false
	}
	return now.After(st.stuckDeadline)
}

// AnswerQuery returns this node's current preference for id, per
// spec.md §4.4 step 7: unknown if the vertex has not been admitted.
func (e *Engine) AnswerQuery(id VertexId) Vote {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[id]
	if !ok {
		return VoteUnknown
	}
	if st.preferred {
		return VotePreferred
	}
	return VoteNotPreferred
}

// Preferred reports id's current local preference bit.
func (e *Engine) Preferred(id VertexId) (bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[id]
	if !ok {
		return false, false
	}
	return st.preferred, true
}

// Confidence reports id's current confidence value.
func (e *Engine) Confidence(id VertexId) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[id]
	if !ok {
		return 0, false
	}
	return st.confidence, true
}

func (e *Engine) sample(peers []ids.NodeID, k int) ([]ids.NodeID, error) {
	u := sampler.NewUniform()
	if err := u.Initialize(len(peers)); err != nil {
		return nil, err
	}
	indices, ok := u.Sample(k)
	if !ok {
		return nil, fmt.Errorf("avalanche: could not sample %d of %d peers", k, len(peers))
	}
	out := make([]ids.NodeID, len(indices))
	for i, idx := range indices {
		out[i] = peers[idx]
	}
	return out, nil
}

func (e *Engine) poll(ctx context.Context, peers []ids.NodeID, id VertexId) (yes, unknown int) {
	queryCtx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	type result struct {
		vote Vote
	}
	results := make(chan result, len(peers))
	for _, p := range peers {
		go func(peer ids.NodeID) {
			vote, err := e.queryWithRetry(queryCtx, peer, id)
			if err != nil {
				vote = VoteUnknown
			}
			results <- result{vote: vote}
		}(p)
	}

	for range peers {
		select {
		case r := <-results:
			switch r.vote {
			case VotePreferred:
				yes++
			case VoteUnknown:
				unknown++
			}
		case <-queryCtx.Done():
			unknown++
		}
	}
	return yes, unknown
}

// queryWithRetry retries a transport failure up to 3 times with
// exponential backoff, per spec.md §4.4 failure semantics.
func (e *Engine) queryWithRetry(ctx context.Context, peer ids.NodeID, id VertexId) (Vote, error) {
	const maxAttempts = 4 // the first try plus 3 retries
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		vote, err := e.transport.Query(ctx, peer, id)
		if err == nil {
			return vote, nil
		}
		lastErr = err
		backoff := time.Duration(math.Pow(2, float64(attempt))) * 5 * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return VoteUnknown, ctx.Err()
		}
	}
	return VoteUnknown, lastErr
}
