package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server collectors.
type Metrics struct {
	wsMessages    *prometheus.CounterVec
	wsConnections prometheus.Gauge
}

// NewMetrics registers the server collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		wsMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nimmem_server_ws_messages_total",
			Help: "WebSocket frames by direction and type.",
		}, []string{"direction", "type"}),
		wsConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "nimmem_server_ws_connections",
			Help: "Open WebSocket connections.",
		}),
	}
}

func (m *Metrics) message(direction, frameType string) {
	if m == nil {
		return
	}
	m.wsMessages.WithLabelValues(direction, frameType).Inc()
}

func (m *Metrics) connected(delta float64) {
	if m == nil {
		return
	}
	m.wsConnections.Add(delta)
}
