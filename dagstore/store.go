// Package dagstore implements the Vertex Store (spec.md §4.2): the single
// admission gate enforcing acyclicity (I1) and signature validity (I2),
// content-addressed lookup, a tip set, and a bounded pending buffer for
// vertices whose parents have not yet arrived. Admission is serialized
// per-store (single writer). Reads take the same mutex and return
// copies; they are not lock-free. This follows the teacher's
// engine/dag/consensus_real.go single-mutex shape.
package dagstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/qudag/qudag/qudagerrors"
	"github.com/qudag/qudag/utils/linked"
	"github.com/qudag/qudag/utils/set"
	"github.com/qudag/qudag/vertex"
)

// Admitted is returned by Insert on success.
type Admitted struct {
	ID VertexId
}

type VertexId = vertex.VertexId

type pendingEntry struct {
	v        *vertex.Vertex
	arrived  time.Time
	missing  set.Set[VertexId]
}

// Store holds the DAG: vertices, children/parent indices, tips, and the
// terminal finalized/rejected sets (spec.md §3's DAG record).
type Store struct {
	mu sync.Mutex // single-writer admission; see package doc

	vertices      map[VertexId]*vertex.Vertex
	childrenIndex map[VertexId]set.Set[VertexId]
	tips          set.Set[VertexId]
	finalized     set.Set[VertexId]
	rejected      set.Set[VertexId]

	insertionOrder map[VertexId]uint64
	nextIndex      uint64

	pending    *linked.Hashmap[VertexId, *pendingEntry]
	maxPending int
	pendingTTL time.Duration

	maxParents int
}

// New constructs an empty Store. maxPending/pendingTTL/maxParents come
// from config.Config (MaxPending, PendingTTL, MaxParents).
func New(maxPending int, pendingTTL time.Duration, maxParents int) *Store {
	return &Store{
		vertices:       make(map[VertexId]*vertex.Vertex),
		childrenIndex:  make(map[VertexId]set.Set[VertexId]),
		tips:           set.NewSet[VertexId](0),
		finalized:      set.NewSet[VertexId](0),
		rejected:       set.NewSet[VertexId](0),
		insertionOrder: make(map[VertexId]uint64),
		pending:        linked.NewHashmap[VertexId, *pendingEntry](),
		maxPending:     maxPending,
		pendingTTL:     pendingTTL,
		maxParents:     maxParents,
	}
}

// Insert validates and admits v, or buffers it in the pending area if
// some parent is not yet known (spec.md §4.2).
func (s *Store) Insert(v *vertex.Vertex) (Admitted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(v)
}

func (s *Store) insertLocked(v *vertex.Vertex) (Admitted, error) {
	isGenesis := len(v.Parents) == 0
	if err := v.Validate(isGenesis); err != nil {
		return Admitted{}, fmt.Errorf("%w: %v", qudagerrors.ErrMalformed, err)
	}

	id := v.ID()
	if _, exists := s.vertices[id]; exists {
		return Admitted{}, qudagerrors.ErrDuplicate
	}

	if !v.Verify() {
		return Admitted{}, qudagerrors.ErrUnauthenticated
	}

	missing := set.NewSet[VertexId](len(v.Parents))
	for _, p := range v.Parents {
		if s.rejected.Contains(p) {
			return Admitted{}, fmt.Errorf("%w: parent %s rejected", qudagerrors.ErrMalformed, p)
		}
		if _, ok := s.vertices[p]; !ok {
			missing.Add(p)
		}
	}
	if missing.Len() > 0 {
		s.bufferPending(id, v, missing)
		return Admitted{}, qudagerrors.ErrMissingDependency
	}

	s.admit(id, v)
	s.retryPendingLocked(id)
	return Admitted{ID: id}, nil
}

// admit performs the unconditional store mutation once all preconditions
// hold: record the vertex, update children/tips (I1, I6).
func (s *Store) admit(id VertexId, v *vertex.Vertex) {
	s.vertices[id] = v
	s.insertionOrder[id] = s.nextIndex
	s.nextIndex++

	for _, p := range v.Parents {
		children, ok := s.childrenIndex[p]
		if !ok {
			children = set.NewSet[VertexId](1)
		}
		children.Add(id)
		s.childrenIndex[p] = children
		s.tips.Remove(p)
	}
	s.tips.Add(id)
}

func (s *Store) bufferPending(id VertexId, v *vertex.Vertex, missing set.Set[VertexId]) {
	if s.pending.Len() >= s.maxPending {
		// LRU eviction: Hashmap preserves insertion order, so the oldest
		// key is whatever was put first among still-present entries.
		if oldest, _, ok := s.pending.OldestEntry(); ok {
			s.pending.Delete(oldest)
		}
	}
	s.pending.Put(id, &pendingEntry{v: v, arrived: time.Now(), missing: missing})
}

// retryPendingLocked re-examines pending entries waiting on id, admitting
// any whose dependencies are now fully satisfied. Each vertex admitted
// this way can itself unblock further pending entries (a grandchild
// whose only missing parent was a pending child just admitted in this
// same pass), so newly admitted ids are queued and retried in turn
// rather than only ever checking the original id.
func (s *Store) retryPendingLocked(id VertexId) {
	worklist := []VertexId{id}
	for len(worklist) > 0 {
		cur := worklist[0]
		worklist = worklist[1:]

		var unblocked []VertexId
		iter := s.pending.NewIterator()
		for iter.Next() {
			pid := iter.Key()
			entry := iter.Value()
			if !entry.missing.Contains(cur) {
				continue
			}
			entry.missing.Remove(cur)
			if entry.missing.Len() == 0 {
				unblocked = append(unblocked, pid)
			}
		}

		for _, pid := range unblocked {
			entry, ok := s.pending.Get(pid)
			if !ok {
				continue
			}
			s.pending.Delete(pid)
			s.admit(pid, entry.v)
			worklist = append(worklist, pid)
		}
	}
}

// SweepPending evicts pending entries older than pendingTTL, driven by
// the coordinator's Tick (spec.md §4.2).
func (s *Store) SweepPending(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iter := s.pending.NewIterator()
	var expired []VertexId
	for iter.Next() {
		if now.Sub(iter.Value().arrived) > s.pendingTTL {
			expired = append(expired, iter.Key())
		}
	}
	for _, id := range expired {
		s.pending.Delete(id)
	}
}

// Get returns the admitted vertex for id, if any.
func (s *Store) Get(id VertexId) (*vertex.Vertex, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vertices[id]
	return v, ok
}

// Tips returns a deterministic snapshot of tips \ rejected (I6), sorted
// the way the teacher's Frontier() sorts to keep parent selection
// reproducible across nodes.
func (s *Store) Tips() []VertexId {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.tips.List()
	sortIDs(out)
	return out
}

// Ancestors returns every ancestor of id up to depth hops away (depth<0
// means unbounded), BFS over parent edges.
func (s *Store) Ancestors(id VertexId, depth int) []VertexId {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := set.NewSet[VertexId](0)
	var out []VertexId
	frontier := []VertexId{id}
	for d := 0; len(frontier) > 0 && (depth < 0 || d < depth); d++ {
		var next []VertexId
		for _, cur := range frontier {
			v, ok := s.vertices[cur]
			if !ok {
				continue
			}
			for _, p := range v.Parents {
				if seen.Contains(p) {
					continue
				}
				seen.Add(p)
				out = append(out, p)
				next = append(next, p)
			}
		}
		frontier = next
	}
	return out
}

// Descendants returns every known descendant of id, BFS over children.
func (s *Store) Descendants(id VertexId) []VertexId {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := set.NewSet[VertexId](0)
	var out []VertexId
	frontier := []VertexId{id}
	for len(frontier) > 0 {
		var next []VertexId
		for _, cur := range frontier {
			for child := range s.childrenIndex[cur] {
				if seen.Contains(child) {
					continue
				}
				seen.Add(child)
				out = append(out, child)
				next = append(next, child)
			}
		}
		frontier = next
	}
	return out
}

// MarkFinalized moves id into the finalized set (I3: monotonic, never
// leaves). Called by the avalanche engine while it holds its single
// engine mutex; there is no per-ConflictSet lock.
func (s *Store) MarkFinalized(id VertexId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized.Add(id)
}

// MarkRejected moves id into the rejected set (I3).
func (s *Store) MarkRejected(id VertexId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected.Add(id)
	s.tips.Remove(id)
}

// IsFinalized/IsRejected/InsertionIndex are read-only snapshot queries.
func (s *Store) IsFinalized(id VertexId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized.Contains(id)
}

func (s *Store) IsRejected(id VertexId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected.Contains(id)
}

func (s *Store) InsertionIndex(id VertexId) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.insertionOrder[id]
	return idx, ok
}

// PendingLen reports the current pending-buffer occupancy (Exhausted
// bookkeeping / tests).
func (s *Store) PendingLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

func sortIDs(ids_ []VertexId) {
	// insertion sort is fine: tip sets are small relative to the DAG.
	for i := 1; i < len(ids_); i++ {
		for j := i; j > 0 && ids_[j-1].Compare(ids_[j]) > 0; j-- {
			ids_[j-1], ids_[j] = ids_[j], ids_[j-1]
		}
	}
}
