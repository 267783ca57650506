package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts memory operations. A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations   *prometheus.CounterVec
	stepFailures *prometheus.CounterVec
	fallbacks    prometheus.Counter
}

// NewMetrics registers the memory collectors with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimmem",
			Subsystem: "memory",
			Name:      "operations_total",
			Help:      "Memory operations by outcome.",
		}, []string{"operation", "outcome"}),
		stepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimmem",
			Subsystem: "memory",
			Name:      "step_failures_total",
			Help:      "Skipped read or write steps by failure kind.",
		}, []string{"step", "kind"}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "nimmem",
			Subsystem: "memory",
			Name:      "fallbacks_total",
			Help:      "Managers constructed in fallback mode.",
		}),
	}
}

const (
	outcomeOK       = "ok"
	outcomeDegraded = "degraded"
)

func (m *Metrics) operation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) stepFailure(step string, err error) {
	if m == nil {
		return
	}
	m.stepFailures.WithLabelValues(step, Classify(err)).Inc()
}

func (m *Metrics) fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}
