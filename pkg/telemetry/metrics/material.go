package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/tlsrelay/pkg/config"
)

// MaterialMetrics tracks key store reloads, issued certificates and
// certificate expiry.
type MaterialMetrics struct {
	reloadsTotal  *prometheus.CounterVec
	lastReload    *prometheus.GaugeVec
	issuedTotal   *prometheus.CounterVec
	expirySeconds *prometheus.GaugeVec
}

// NewMaterialMetrics creates and registers material metrics with the provided registry.
func NewMaterialMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *MaterialMetrics {
	mm := &MaterialMetrics{
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "material_reloads_total",
				Help:      "Total number of key store reload attempts by result",
			},
			[]string{"store", "result"},
		),

		lastReload: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "material_last_reload_timestamp_seconds",
				Help:      "Unix time of the last successful key store reload",
			},
			[]string{"store"},
		),

		issuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "certificates_issued_total",
				Help:      "Total number of client certificate issuance attempts by result",
			},
			[]string{"result"},
		),

		expirySeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "certificate_expiry_seconds",
				Help:      "Seconds until a stored certificate expires (negative once expired)",
			},
			[]string{"store", "alias"},
		),
	}

	registry.MustRegister(mm.reloadsTotal, mm.lastReload, mm.issuedTotal, mm.expirySeconds)

	return mm
}

// Reloaded records a reload attempt of store.
func (mm *MaterialMetrics) Reloaded(store string, err error, at time.Time) {
	mm.reloadsTotal.WithLabelValues(store, result(err)).Inc()
	if err == nil {
		mm.lastReload.WithLabelValues(store).Set(float64(at.Unix()))
	}
}

// Issued records an issuance attempt.
func (mm *MaterialMetrics) Issued(err error) {
	mm.issuedTotal.WithLabelValues(result(err)).Inc()
}

// SetExpiry records the remaining lifetime of a certificate.
func (mm *MaterialMetrics) SetExpiry(store, alias string, remaining time.Duration) {
	mm.expirySeconds.WithLabelValues(store, alias).Set(remaining.Seconds())
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
