package config

import (
	"fmt"
	"time"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultDialTimeout      = 10 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteQueueSize   = 64
	DefaultReadBufferSize   = 32 * 1024
	DefaultShutdownTimeout  = 30 * time.Second

	// TLS defaults
	DefaultMinTLSVersion       = "1.2"
	DefaultStoreReloadInterval = 5 * time.Minute

	// Issuance defaults
	DefaultIssuanceValidity    = 24 * time.Hour
	DefaultIssuanceBackdate    = time.Minute
	DefaultIssuanceKeyBits     = 2048
	DefaultIdentityMapping     = "subject"
	DefaultCAKeyAlias          = keystore.DefaultKeyAlias
	DefaultGeneratedCAValidity = 365 * 24 * time.Hour
	DefaultLedgerBackend       = "memory"
	DefaultLedgerPath          = "data/issued.db"
	DefaultLedgerSchedule      = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsNamespace   = "tlsrelay"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingExporter    = "otlp"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingService     = "tlsrelay"
	DefaultOTLPTimeout        = 10 * time.Second
	DefaultAdminListenAddress = "127.0.0.1:9090"
	DefaultExpirySchedule     = "@every 1h"
	DefaultExpiryWarnBefore   = 30 * 24 * time.Hour
)

// DefaultDurationBuckets are the connection duration histogram buckets in seconds.
var DefaultDurationBuckets = []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600, 3600}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Proxy defaults
	for i := range cfg.Proxy.Channels {
		if cfg.Proxy.Channels[i].Name == "" {
			cfg.Proxy.Channels[i].Name = fmt.Sprintf("channel-%d", i)
		}
	}
	if cfg.Proxy.DialTimeout == 0 {
		cfg.Proxy.DialTimeout = DefaultDialTimeout
	}
	if cfg.Proxy.HandshakeTimeout == 0 {
		cfg.Proxy.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Proxy.WriteQueueSize == 0 {
		cfg.Proxy.WriteQueueSize = DefaultWriteQueueSize
	}
	if cfg.Proxy.ReadBufferSize == 0 {
		cfg.Proxy.ReadBufferSize = DefaultReadBufferSize
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}

	// TLS defaults
	if cfg.UpstreamTLS.MinVersion == "" {
		cfg.UpstreamTLS.MinVersion = DefaultMinTLSVersion
	}
	if cfg.DownstreamTLS.MinVersion == "" {
		cfg.DownstreamTLS.MinVersion = DefaultMinTLSVersion
	}
	applyStoreDefaults(&cfg.UpstreamTLS.KeyStore)
	applyStoreDefaults(&cfg.UpstreamTLS.TrustStore)
	applyStoreDefaults(&cfg.DownstreamTLS.KeyStore)
	applyStoreDefaults(&cfg.DownstreamTLS.TrustStore)
	applyStoreDefaults(&cfg.Issuance.CA.KeyStore)

	// Issuance defaults
	if cfg.Issuance.Validity == 0 {
		cfg.Issuance.Validity = DefaultIssuanceValidity
	}
	if cfg.Issuance.Backdate == 0 {
		cfg.Issuance.Backdate = DefaultIssuanceBackdate
	}
	if cfg.Issuance.KeyBits == 0 {
		cfg.Issuance.KeyBits = DefaultIssuanceKeyBits
	}
	if cfg.Issuance.IdentityMapping == "" {
		cfg.Issuance.IdentityMapping = DefaultIdentityMapping
	}
	if cfg.Issuance.CA.KeyAlias == "" {
		cfg.Issuance.CA.KeyAlias = DefaultCAKeyAlias
	}
	if cfg.Issuance.CA.Generate.Validity == 0 {
		cfg.Issuance.CA.Generate.Validity = DefaultGeneratedCAValidity
	}
	if cfg.Issuance.Ledger.Backend == "" {
		cfg.Issuance.Ledger.Backend = DefaultLedgerBackend
	}
	if cfg.Issuance.Ledger.Path == "" {
		cfg.Issuance.Ledger.Path = DefaultLedgerPath
	}
	if cfg.Issuance.Ledger.PruneSchedule == "" {
		cfg.Issuance.Ledger.PruneSchedule = DefaultLedgerSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Telemetry.Metrics.DurationBuckets) == 0 {
		cfg.Telemetry.Metrics.DurationBuckets = append([]float64(nil), DefaultDurationBuckets...)
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.Exporter == "" {
		cfg.Telemetry.Tracing.Exporter = DefaultTracingExporter
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Telemetry.Tracing.OTLP.Timeout == 0 {
		cfg.Telemetry.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}
	if cfg.Telemetry.Admin.ListenAddress == "" {
		cfg.Telemetry.Admin.ListenAddress = DefaultAdminListenAddress
	}
	if cfg.Telemetry.ExpiryCheck.Schedule == "" {
		cfg.Telemetry.ExpiryCheck.Schedule = DefaultExpirySchedule
	}
	if cfg.Telemetry.ExpiryCheck.WarnBefore == 0 {
		cfg.Telemetry.ExpiryCheck.WarnBefore = DefaultExpiryWarnBefore
	}
}

// applyStoreDefaults fills in the type and reload interval of a configured
// store. An explicit zero or negative interval is kept and reloads on every
// access.
func applyStoreDefaults(s *keystore.StoreConfig) {
	if s.IsZero() {
		return
	}
	if s.Type == "" {
		s.Type = keystore.TypePKCS12
	}
	if !s.HasReloadInterval() {
		s.ReloadInterval = DefaultStoreReloadInterval
	}
}
