package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/tlsrelay/pkg/config"
)

// Collector is the main orchestrator for all Prometheus metrics in tlsrelay.
// It manages metric registration and provides a unified interface for
// recording metrics across all components.
//
// All methods are safe on a nil *Collector and on a disabled one, so callers
// never need to check whether metrics are configured.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	connections *ConnectionMetrics
	material    *MaterialMetrics
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a new registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "tlsrelay",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	// Set defaults if not specified
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = append([]float64(nil), config.DefaultDurationBuckets...)
	}

	return &Collector{
		config:      cfg,
		registry:    registry,
		connections: NewConnectionMetrics(cfg, registry),
		material:    NewMaterialMetrics(cfg, registry),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// ConnectionOpened records an accepted connection on channel.
func (c *Collector) ConnectionOpened(channel string) {
	if !c.enabled() {
		return
	}
	c.connections.Opened(channel)
}

// ConnectionClosed records a closed connection.
//
// Parameters:
//   - channel: channel name
//   - outcome: how the connection ended (e.g., "ok", "upstream_tls_failed")
//   - duration: time since the connection was accepted
func (c *Collector) ConnectionClosed(channel, outcome string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.connections.Closed(channel, outcome, duration)
}

// RecordBytes records n bytes relayed in direction ("upstream_to_downstream"
// or "downstream_to_upstream").
func (c *Collector) RecordBytes(channel, direction string, n int) {
	if !c.enabled() {
		return
	}
	c.connections.AddBytes(channel, direction, n)
}

// RecordHandshakeFailure records a failed handshake on leg ("upstream" or "downstream").
func (c *Collector) RecordHandshakeFailure(channel, leg string) {
	if !c.enabled() {
		return
	}
	c.connections.HandshakeFailed(channel, leg)
}

// RecordReload records a key store reload attempt. It can be registered
// directly as a keystore.ReloadHook.
func (c *Collector) RecordReload(store string, err error) {
	if !c.enabled() {
		return
	}
	c.material.Reloaded(store, err, time.Now())
}

// RecordIssuance records a certificate issuance attempt.
func (c *Collector) RecordIssuance(err error) {
	if !c.enabled() {
		return
	}
	c.material.Issued(err)
}

// SetCertificateExpiry records the remaining lifetime of the certificate
// stored under alias in store.
func (c *Collector) SetCertificateExpiry(store, alias string, remaining time.Duration) {
	if !c.enabled() {
		return
	}
	c.material.SetExpiry(store, alias, remaining)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
