// Package coordinator wires together the Vertex Store (C2), Conflict
// Index (C3), QR-Avalanche Engine (C4), Tip Selector (C5), Circuit
// Builder (C6/C7), and Dark Resolver (C8) into the single event loop a
// running node drives: admit, sample, finalize, persist, repeat.
// Grounded on the teacher's engine/fastdag.Engine Start/Stop/loop shape
// (engine/fastdag/engine.go): a mutex-guarded struct, a shutdown
// channel closed by Stop, and a ticker-driven background goroutine
// rather than a blocking call tree.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qudag/qudag/avalanche"
	"github.com/qudag/qudag/conflict"
	"github.com/qudag/qudag/config"
	"github.com/qudag/qudag/dagstore"
	"github.com/qudag/qudag/log"
	"github.com/qudag/qudag/onion"
	"github.com/qudag/qudag/qudagerrors"
	"github.com/qudag/qudag/resolver"
	"github.com/qudag/qudag/store"
	"github.com/qudag/qudag/tipselect"
	"github.com/qudag/qudag/vertex"
)

// VertexId aliases the content-addressed vertex identifier threaded
// through every component.
type VertexId = vertex.VertexId

// Coordinator is the single node-local entry point: every external
// request (submit a vertex, build a circuit, resolve a name) goes
// through it rather than touching a subsystem directly.
type Coordinator struct {
	cfg config.Config
	log log.Logger

	store     *dagstore.Store
	conflicts *conflict.Index
	engine    *avalanche.Engine
	tips      *tipselect.Selector
	circuits  *onion.Builder
	names     *resolver.Resolver
	ledger    *store.Ledger
	metrics   *Metrics

	mu     sync.Mutex
	active map[VertexId]struct{}
	anchor VertexId

	tickInterval time.Duration
	shutdown     chan struct{}
	done         chan struct{}
}

// Option configures optional collaborators a given deployment may omit
// (a pure-consensus node has no circuits or resolver wired in).
type Option func(*Coordinator)

// WithCircuitBuilder wires the onion Circuit Builder/Packet Processor.
func WithCircuitBuilder(b *onion.Builder) Option {
	return func(c *Coordinator) { c.circuits = b }
}

// WithResolver wires the Dark Resolver.
func WithResolver(r *resolver.Resolver) Option {
	return func(c *Coordinator) { c.names = r }
}

// WithTickInterval overrides the default consensus-round cadence.
func WithTickInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.tickInterval = d }
}

// WithMetrics wires a Prometheus collector set. Omitted in tests that
// don't care about observability.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New builds a Coordinator over an already-constructed store, conflict
// index, and avalanche engine (the caller wires transport/peer-set
// dependencies those need), plus a ledger for finalized-vertex
// persistence (spec.md §6.4) and the genesis vertex id used as the tip
// selector's anchor when the tip set is empty.
func New(cfg config.Config, st *dagstore.Store, conflicts *conflict.Index, engine *avalanche.Engine, ledger *store.Ledger, genesis VertexId, logger log.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = log.New("coordinator")
	}
	c := &Coordinator{
		cfg:          cfg,
		log:          logger,
		store:        st,
		conflicts:    conflicts,
		engine:       engine,
		tips:         tipselect.New(st, engine, cfg.TipAgeDecay),
		ledger:       ledger,
		active:       make(map[VertexId]struct{}),
		anchor:       genesis,
		tickInterval: 50 * time.Millisecond,
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the background tick loop. Calling Start twice is a
// programmer error; callers own a single Coordinator per node.
func (c *Coordinator) Start(ctx context.Context) {
	go c.loop(ctx)
}

// Stop halts the tick loop and waits for it to exit.
func (c *Coordinator) Stop() {
	close(c.shutdown)
	<-c.done
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Tick(ctx)
		case <-c.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Tick drives one consensus sweep: evict expired pending vertices, run
// one QR-Avalanche round for every still-active vertex, and persist
// any vertex that just reached finality. Exposed so tests can step the
// engine deterministically instead of racing a ticker.
func (c *Coordinator) Tick(ctx context.Context) {
	c.store.SweepPending(time.Now())

	c.mu.Lock()
	ids := make([]VertexId, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		if err := c.engine.RunRound(ctx, id); err != nil && err != qudagerrors.ErrTimeout {
			c.log.Debug("coordinator: round failed", "vertex", id, "error", err)
		}
		if c.metrics != nil {
			c.metrics.roundsRun.Inc()
		}
		c.settleIfDone(id, now)
	}
	if c.metrics != nil {
		c.metrics.verticesActive.Set(float64(c.ActiveCount()))
	}
}

func (c *Coordinator) settleIfDone(id VertexId, now time.Time) {
	if c.store.IsFinalized(id) {
		c.mu.Lock()
		delete(c.active, id)
		c.anchor = id
		c.mu.Unlock()
		c.persistFinalized(id)
		if c.metrics != nil {
			c.metrics.verticesFinal.Inc()
		}
		return
	}
	if c.store.IsRejected(id) {
		c.mu.Lock()
		delete(c.active, id)
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.verticesRejected.Inc()
		}
		return
	}
	if c.engine.Stuck(id, now) {
		c.log.Warn("coordinator: vertex stuck, leaving active for resubmission", "vertex", id)
	}
}

// persistFinalized appends a newly finalized vertex to the ledger's
// append-only log, keyed by its stable store insertion index (spec.md
// §6.4). A missing ledger (tests that don't care about durability) is
// a no-op.
func (c *Coordinator) persistFinalized(id VertexId) {
	if c.ledger == nil {
		return
	}
	v, ok := c.store.Get(id)
	if !ok {
		return
	}
	idx, ok := c.store.InsertionIndex(id)
	if !ok {
		return
	}
	encoded, err := vertex.Encode(v)
	if err != nil {
		c.log.Error("coordinator: encode finalized vertex", "vertex", id, "error", err)
		return
	}
	if err := c.ledger.AppendFinalized(idx, encoded); err != nil {
		c.log.Error("coordinator: persist finalized vertex", "vertex", id, "error", err)
	}
}

// SubmitVertex admits v into the store, starts QR-Avalanche tracking,
// and records its arrival with the tip selector, in the order spec.md
// §4.2/§4.4 require: admission gates everything downstream.
func (c *Coordinator) SubmitVertex(v *vertex.Vertex, firstSeenLocally bool) (VertexId, error) {
	admitted, err := c.store.Insert(v)
	if err != nil {
		return VertexId{}, fmt.Errorf("coordinator: submit vertex: %w", err)
	}

	c.engine.Admit(v, firstSeenLocally)
	now := time.Now()
	c.tips.NoteArrival(admitted.ID, now)

	c.mu.Lock()
	c.active[admitted.ID] = struct{}{}
	c.mu.Unlock()

	return admitted.ID, nil
}

// SelectParents picks up to count tip vertices to cite when building a
// new vertex locally (spec.md §4.5), falling back to the most recently
// observed finalized vertex as the anchor once the tip set is empty.
func (c *Coordinator) SelectParents(policy tipselect.Policy, count int) ([]VertexId, error) {
	c.mu.Lock()
	anchor := c.anchor
	c.mu.Unlock()
	return c.tips.SelectParents(policy, count, anchor)
}

// BuildCircuit constructs a new onion-routed circuit, if a Circuit
// Builder was wired in via WithCircuitBuilder.
func (c *Coordinator) BuildCircuit(ctx context.Context, hops int) (*onion.Circuit, error) {
	if c.circuits == nil {
		return nil, fmt.Errorf("coordinator: no circuit builder configured")
	}
	circuit, err := c.circuits.Build(ctx, hops)
	if err == nil && c.metrics != nil {
		c.metrics.circuitsBuilt.Inc()
	}
	return circuit, err
}

// Register publishes a dark-addressing name, if a Resolver was wired
// in via WithResolver.
func (c *Coordinator) Register(name string, address []byte, validity time.Duration, authorSK, authorPK []byte) (*resolver.DarkRecord, error) {
	if c.names == nil {
		return nil, fmt.Errorf("coordinator: no resolver configured")
	}
	return c.names.Register(name, address, validity, authorSK, authorPK)
}

// Resolve looks up a dark-addressing name, if a Resolver was wired in.
func (c *Coordinator) Resolve(origin, name string) ([]byte, error) {
	if c.names == nil {
		return nil, fmt.Errorf("coordinator: no resolver configured")
	}
	if c.metrics != nil {
		c.metrics.resolveRequests.Inc()
	}
	return c.names.Resolve(origin, name)
}

// ActiveCount reports how many vertices are still mid-consensus,
// mainly for tests and metrics.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}
