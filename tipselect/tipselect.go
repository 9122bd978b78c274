// Package tipselect implements the Tip Selector (spec.md §4.5):
// select_parents(count) returns between 1 and MAX_PARENTS tips under a
// pluggable policy. Grounded on the teacher's utils/sampler.Uniform and
// WeightedWithoutReplacement (utils/sampler/{uniform,weighted}.go),
// the same primitives protocol/prism uses for peer sampling.
package tipselect

import (
	"fmt"
	"math"
	"time"

	"github.com/qudag/qudag/dagstore"
	"github.com/qudag/qudag/utils/sampler"
	"github.com/qudag/qudag/vertex"
)

// VertexId aliases the content-addressed vertex identifier.
type VertexId = dagstore.VertexId

// Policy selects which tips to cite as parents.
type Policy int

const (
	Uniform Policy = iota
	ConfidenceWeighted
)

// ConfidenceSource supplies each tip's current confidence, used by the
// ConfidenceWeighted policy.
type ConfidenceSource interface {
	Confidence(id VertexId) (float64, bool)
}

// Selector picks parents for a new vertex from the store's current
// tip set.
type Selector struct {
	store    *dagstore.Store
	conf     ConfidenceSource
	ageDecay float64
	arrival  map[VertexId]time.Time
}

// New builds a Selector. conf may be nil if only Uniform selection is
// ever used.
func New(store *dagstore.Store, conf ConfidenceSource, ageDecay float64) *Selector {
	return &Selector{
		store:    store,
		conf:     conf,
		ageDecay: ageDecay,
		arrival:  make(map[VertexId]time.Time),
	}
}

// NoteArrival records when id became a tip, for age-decay weighting.
// The coordinator calls this on every admission.
func (s *Selector) NoteArrival(id VertexId, at time.Time) {
	s.arrival[id] = at
}

// SelectParents returns between 1 and count tips chosen by policy
// (spec.md §4.5). If tips is empty, it falls back to the single
// highest-finalized vertex (the anchor); if tips is smaller than
// count, the full tip set is returned.
func (s *Selector) SelectParents(policy Policy, count int, anchor VertexId) ([]VertexId, error) {
	if count < 1 {
		return nil, fmt.Errorf("tipselect: count must be at least 1, got %d", count)
	}
	if count > vertex.MaxParents {
		count = vertex.MaxParents
	}

	tips := s.store.Tips()
	if len(tips) == 0 {
		return []VertexId{anchor}, nil
	}
	if len(tips) <= count {
		return tips, nil
	}

	switch policy {
	case ConfidenceWeighted:
		return s.selectWeighted(tips, count)
	default:
		return s.selectUniform(tips, count)
	}
}

func (s *Selector) selectUniform(tips []VertexId, count int) ([]VertexId, error) {
	u := sampler.NewUniform()
	if err := u.Initialize(len(tips)); err != nil {
		return nil, fmt.Errorf("tipselect: init uniform sampler: %w", err)
	}
	indices, ok := u.Sample(count)
	if !ok {
		return nil, fmt.Errorf("tipselect: could not sample %d of %d tips", count, len(tips))
	}
	out := make([]VertexId, len(indices))
	for i, idx := range indices {
		out[i] = tips[idx]
	}
	return out, nil
}

func (s *Selector) selectWeighted(tips []VertexId, count int) ([]VertexId, error) {
	now := time.Now()
	weights := make([]uint64, len(tips))
	for i, t := range tips {
		conf := 1.0
		if s.conf != nil {
			if c, ok := s.conf.Confidence(t); ok {
				conf = c
			}
		}
		age := now.Sub(s.arrival[t]).Seconds()
		if age < 0 {
			age = 0
		}
		w := conf * math.Exp(-s.ageDecay*age)
		// Scale into a fixed-point integer domain; sampler.Weighted
		// operates over uint64 weights.
		weights[i] = uint64(math.Max(w, 0) * 1e6)
		if weights[i] == 0 {
			weights[i] = 1
		}
	}

	wsampler := sampler.NewWeightedWithoutReplacement()
	if err := wsampler.Initialize(weights); err != nil {
		return nil, fmt.Errorf("tipselect: init weighted sampler: %w", err)
	}
	indices, ok := wsampler.Sample(count)
	if !ok {
		return nil, fmt.Errorf("tipselect: could not sample %d of %d tips", count, len(tips))
	}
	out := make([]VertexId, len(indices))
	for i, idx := range indices {
		out[i] = tips[idx]
	}
	return out, nil
}
