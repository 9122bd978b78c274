// Package conflict implements the Conflict Index (spec.md §4.3): it groups
// vertices that are pairwise mutually exclusive by an application-supplied
// classify(v) -> ConflictKey hook, the same role the teacher's
// engine/dag/consensus_real.go inputIndex/conflictSets pair plays for
// UTXO double-spend detection, generalized to an arbitrary payload-derived
// key since spec.md §9 leaves classify's contents abstract.
package conflict

import (
	"sync"

	"github.com/qudag/qudag/utils/set"
	"github.com/qudag/qudag/vertex"
)

// ConflictKey identifies the application-defined resource two vertices
// both touch (e.g. a spent output, a claimed name, an equivocation
// nonce). Vertices sharing a ConflictKey join the same ConflictSet.
type ConflictKey string

// ConflictSetId names a ConflictSet by one of its member vertex ids
// rather than a synthetic counter; when two sets merge, the numerically
// lower id survives.
type ConflictSetId = vertex.VertexId

// Classifier extracts the ConflictKeys a vertex's payload touches. A
// vertex that returns no keys forms its own singleton ConflictSet
// (spec.md §4.3 edge case).
type Classifier func(v *vertex.Vertex) []ConflictKey

// Index tracks ConflictSets. One Index belongs to one DAG; it never
// removes a vertex once recorded, and ConflictSets never split once
// merged (spec.md §4.3).
type Index struct {
	mu sync.RWMutex

	classify Classifier

	// keyIndex maps a ConflictKey to every vertex known to touch it,
	// the direct analogue of the teacher's inputIndex.
	keyIndex map[ConflictKey][]vertex.VertexId

	// setOf maps a vertex to the id of the ConflictSet it belongs to.
	setOf map[vertex.VertexId]ConflictSetId

	// members maps a ConflictSet id to every vertex in it.
	members map[ConflictSetId]set.Set[vertex.VertexId]
}

// New builds an Index using classify to derive ConflictKeys. A nil
// classify treats every vertex as conflict-free (each forms a singleton
// set keyed by its own id).
func New(classify Classifier) *Index {
	if classify == nil {
		classify = func(*vertex.Vertex) []ConflictKey { return nil }
	}
	return &Index{
		classify: classify,
		keyIndex: make(map[ConflictKey][]vertex.VertexId),
		setOf:    make(map[vertex.VertexId]ConflictSetId),
		members:  make(map[ConflictSetId]set.Set[vertex.VertexId]),
	}
}

// Record admits v into the index: it is joined with every vertex already
// sharing one of its ConflictKeys, merging their ConflictSets if they
// differ, and is assigned a singleton set if it shares no key with
// anyone.
func (idx *Index) Record(v *vertex.Vertex) ConflictSetId {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	id := v.ID()
	if existing, ok := idx.setOf[id]; ok {
		return existing
	}

	idx.newSingleton(id)

	for _, key := range idx.classify(v) {
		for _, sibling := range idx.keyIndex[key] {
			if sibling == id {
				continue
			}
			idx.merge(id, sibling)
		}
		idx.keyIndex[key] = append(idx.keyIndex[key], id)
	}

	return idx.setOf[id]
}

func (idx *Index) newSingleton(id vertex.VertexId) {
	idx.setOf[id] = id
	idx.members[id] = set.Of(id)
}

// merge folds b's ConflictSet into a's (or vice versa, keeping the
// lower-indexed set's id stable so lock ordering by ConflictSetId stays
// meaningful — spec.md §5's "ordered by a fixed lock order (conflict set
// id ascending)").
func (idx *Index) merge(a, b vertex.VertexId) {
	setA, setB := idx.setOf[a], idx.setOf[b]
	if setA == setB {
		return
	}
	into, from := setA, setB
	if from.Compare(into) < 0 {
		into, from = from, into
	}

	fromMembers := idx.members[from]
	intoMembers := idx.members[into]
	intoMembers.Union(fromMembers)
	idx.members[into] = intoMembers
	delete(idx.members, from)

	for member := range fromMembers {
		idx.setOf[member] = into
	}
}

// Siblings returns every other vertex in v's ConflictSet.
func (idx *Index) Siblings(id vertex.VertexId) set.Set[vertex.VertexId] {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	setID, ok := idx.setOf[id]
	if !ok {
		return set.NewSet[vertex.VertexId](0)
	}
	out := set.NewSet[vertex.VertexId](idx.members[setID].Len())
	for member := range idx.members[setID] {
		if member != id {
			out.Add(member)
		}
	}
	return out
}

// ConflictSetOf returns the ConflictSetId a vertex belongs to.
func (idx *Index) ConflictSetOf(id vertex.VertexId) (ConflictSetId, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	setID, ok := idx.setOf[id]
	return setID, ok
}

// IsSingleton reports whether id's ConflictSet has exactly one member,
// the case spec.md §4.4 step 1 fast-paths to immediate preference.
func (idx *Index) IsSingleton(id vertex.VertexId) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	setID, ok := idx.setOf[id]
	if !ok {
		return true
	}
	return idx.members[setID].Len() <= 1
}

// MarkRejectedExcept returns every member of winner's ConflictSet other
// than winner — the vertices I4 requires the caller (the avalanche
// engine, which owns finality transitions) to move to Rejected in the
// same step that winner moves to Finalized. The Index itself holds no
// finalized/rejected state; that lives in the vertex store (spec.md §3's
// DAG record), so it does not mutate anything here.
func (idx *Index) MarkRejectedExcept(winner vertex.VertexId) set.Set[vertex.VertexId] {
	return idx.Siblings(winner)
}

// Members returns every vertex in id's ConflictSet, including id itself.
func (idx *Index) Members(id vertex.VertexId) set.Set[vertex.VertexId] {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	setID, ok := idx.setOf[id]
	if !ok {
		return set.Of(id)
	}
	out := set.NewSet[vertex.VertexId](idx.members[setID].Len())
	out.Union(idx.members[setID])
	return out
}
