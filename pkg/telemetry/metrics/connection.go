package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/tlsrelay/pkg/config"
)

// ConnectionMetrics tracks relayed connections.
//
// Metrics:
//   - <ns>_connections_total: Closed connections by channel and outcome
//   - <ns>_connections_active: Open connections by channel
//   - <ns>_connection_duration_seconds: Connection lifetime histogram
//   - <ns>_bytes_relayed_total: Relayed bytes by channel and direction
//   - <ns>_handshake_failures_total: Failed TLS handshakes by channel and leg
type ConnectionMetrics struct {
	connectionsTotal  *prometheus.CounterVec
	connectionsActive *prometheus.GaugeVec
	duration          *prometheus.HistogramVec
	bytesRelayed      *prometheus.CounterVec
	handshakeFailures *prometheus.CounterVec
}

// NewConnectionMetrics creates and registers connection metrics with the provided registry.
func NewConnectionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ConnectionMetrics {
	cm := &ConnectionMetrics{
		connectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "connections_total",
				Help:      "Total number of closed connections by outcome",
			},
			[]string{"channel", "outcome"},
		),

		connectionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "connections_active",
				Help:      "Number of currently open connections",
			},
			[]string{"channel"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "connection_duration_seconds",
				Help:      "Lifetime of relayed connections in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"channel"},
		),

		bytesRelayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "bytes_relayed_total",
				Help:      "Total bytes relayed by direction",
			},
			[]string{"channel", "direction"},
		),

		handshakeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "handshake_failures_total",
				Help:      "Total number of failed TLS handshakes by leg",
			},
			[]string{"channel", "leg"},
		),
	}

	registry.MustRegister(
		cm.connectionsTotal,
		cm.connectionsActive,
		cm.duration,
		cm.bytesRelayed,
		cm.handshakeFailures,
	)

	return cm
}

// Opened records a newly accepted connection.
func (cm *ConnectionMetrics) Opened(channel string) {
	cm.connectionsActive.WithLabelValues(channel).Inc()
}

// Closed records the end of a connection.
func (cm *ConnectionMetrics) Closed(channel, outcome string, d time.Duration) {
	cm.connectionsActive.WithLabelValues(channel).Dec()
	cm.connectionsTotal.WithLabelValues(channel, outcome).Inc()
	cm.duration.WithLabelValues(channel).Observe(d.Seconds())
}

// AddBytes records n relayed bytes.
func (cm *ConnectionMetrics) AddBytes(channel, direction string, n int) {
	if n <= 0 {
		return
	}
	cm.bytesRelayed.WithLabelValues(channel, direction).Add(float64(n))
}

// HandshakeFailed records a failed TLS handshake.
func (cm *ConnectionMetrics) HandshakeFailed(channel, leg string) {
	cm.handshakeFailures.WithLabelValues(channel, leg).Inc()
}
