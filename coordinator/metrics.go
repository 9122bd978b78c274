package coordinator

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the coordinator updates as
// it drives consensus, circuit building, and name resolution. Grounded
// on the teacher's metrics.Metrics, which likewise wraps a
// prometheus.Registerer rather than using the global default registry
// (metrics/metrics.go).
type Metrics struct {
	reg prometheus.Registerer

	roundsRun        prometheus.Counter
	verticesActive   prometheus.Gauge
	verticesFinal    prometheus.Counter
	verticesRejected prometheus.Counter
	circuitsBuilt    prometheus.Counter
	resolveRequests  prometheus.Counter
}

// NewMetrics registers the coordinator's collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with any
// process-wide default registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		reg: reg,
		roundsRun: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qudag_avalanche_rounds_total",
			Help: "QR-Avalanche sampling rounds run.",
		}),
		verticesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qudag_vertices_active",
			Help: "Vertices currently mid-consensus.",
		}),
		verticesFinal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qudag_vertices_finalized_total",
			Help: "Vertices that have reached finality.",
		}),
		verticesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qudag_vertices_rejected_total",
			Help: "Vertices rejected by a ConflictSet decision.",
		}),
		circuitsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qudag_circuits_built_total",
			Help: "Onion circuits successfully built.",
		}),
		resolveRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qudag_resolve_requests_total",
			Help: "Dark-addressing resolve calls served.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.roundsRun, m.verticesActive, m.verticesFinal, m.verticesRejected,
		m.circuitsBuilt, m.resolveRequests,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
