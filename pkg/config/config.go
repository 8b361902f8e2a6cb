package config

import (
	"strconv"
	"time"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

// Config is the root configuration structure for tlsrelay.
type Config struct {
	// Proxy contains the relay channels and per-connection limits.
	Proxy ProxyConfig `yaml:"proxy"`

	// UpstreamTLS configures TLS termination for accepted connections.
	UpstreamTLS UpstreamTLSConfig `yaml:"upstream_tls"`

	// DownstreamTLS configures TLS origination towards the downstream endpoint.
	DownstreamTLS DownstreamTLSConfig `yaml:"downstream_tls"`

	// Issuance configures on-demand client certificates for the downstream leg.
	Issuance IssuanceConfig `yaml:"issuance"`

	// Telemetry contains logging, metrics, tracing and admin endpoint settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProxyConfig contains the relay channels and connection settings shared by
// all of them.
type ProxyConfig struct {
	// Channels lists the upstream/downstream endpoint pairs to relay.
	Channels []ChannelConfig `yaml:"channels"`

	// DialTimeout bounds the TCP connect to the downstream endpoint.
	// Default: 10s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// HandshakeTimeout bounds each TLS handshake.
	// Default: 10s
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// WriteQueueSize is the number of pending writes buffered per leg.
	// Default: 64
	WriteQueueSize int `yaml:"write_queue_size"`

	// ReadBufferSize is the size of each leg's read buffer in bytes.
	// Default: 32768
	ReadBufferSize int `yaml:"read_buffer_size"`

	// ShutdownTimeout bounds how long shutdown waits for open connections.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ChannelConfig binds one upstream listen endpoint to one downstream target.
type ChannelConfig struct {
	// Name identifies the channel in logs and metrics.
	// Default: "channel-<index>"
	Name string `yaml:"name"`

	// Upstream is the address to listen on.
	Upstream EndpointConfig `yaml:"upstream"`

	// Downstream is the address to connect to.
	Downstream EndpointConfig `yaml:"downstream"`
}

// EndpointConfig is a host and port pair.
type EndpointConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns the endpoint as host:port.
func (e EndpointConfig) Address() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// UpstreamTLSConfig configures the server side of the relay.
type UpstreamTLSConfig struct {
	// Enabled turns on TLS termination. When false the upstream leg is plain TCP.
	Enabled bool `yaml:"enabled"`

	// KeyStore holds the server certificate and key. Required when enabled.
	KeyStore keystore.StoreConfig `yaml:"key_store"`

	// TrustStore holds the CAs client certificates are verified against.
	// When unset, client certificates are not requested.
	TrustStore keystore.StoreConfig `yaml:"trust_store"`

	// ClientAuthRequired rejects clients without a valid certificate.
	ClientAuthRequired bool `yaml:"client_auth_required"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`

	// CipherSuites restricts TLS 1.2 suites by IANA name.
	CipherSuites []string `yaml:"cipher_suites"`
}

// DownstreamTLSConfig configures the client side of the relay.
type DownstreamTLSConfig struct {
	// Enabled turns on TLS towards the downstream endpoint.
	Enabled bool `yaml:"enabled"`

	// TrustStore holds the CAs the downstream server is verified against.
	// When unset, the system roots are used.
	TrustStore keystore.StoreConfig `yaml:"trust_store"`

	// KeyStore holds a static client certificate. Ignored when issuance is
	// enabled.
	KeyStore keystore.StoreConfig `yaml:"key_store"`

	// HostnameVerification checks the downstream certificate against the
	// dialed host.
	// Default: true
	HostnameVerification *bool `yaml:"hostname_verification"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`

	// CipherSuites restricts TLS 1.2 suites by IANA name.
	CipherSuites []string `yaml:"cipher_suites"`
}

// VerifyHostname reports whether hostname verification is on.
func (c DownstreamTLSConfig) VerifyHostname() bool {
	return c.HostnameVerification == nil || *c.HostnameVerification
}

// IssuanceConfig configures on-demand client certificates.
type IssuanceConfig struct {
	// Enabled mints a downstream client certificate per upstream peer.
	Enabled bool `yaml:"enabled"`

	// CA selects the signing authority.
	CA CAConfig `yaml:"ca"`

	// SignatureAlgorithm names the leaf signature algorithm, for example
	// "SHA256WithRSA". Empty selects the default for the CA key.
	SignatureAlgorithm string `yaml:"signature_algorithm"`

	// Validity is the lifetime of issued certificates.
	// Default: 24h
	Validity time.Duration `yaml:"validity"`

	// Backdate moves NotBefore into the past to absorb clock skew.
	// Default: 1m
	Backdate time.Duration `yaml:"backdate"`

	// KeyBits is the RSA key size of issued certificates.
	// Default: 2048
	KeyBits int `yaml:"key_bits"`

	// IdentityMapping is "subject" or "common_name".
	// Default: "subject"
	IdentityMapping string `yaml:"identity_mapping"`

	// Ledger records issued certificates.
	Ledger LedgerConfig `yaml:"ledger"`
}

// CAConfig selects a CA store or a generated CA.
type CAConfig struct {
	// KeyStore holds the CA certificate and key.
	KeyStore keystore.StoreConfig `yaml:"key_store"`

	// KeyAlias is the entry holding the CA key.
	// Default: "key"
	KeyAlias string `yaml:"key_alias"`

	// Generate creates an in-memory CA when KeyStore is unset.
	Generate GenerateCAConfig `yaml:"generate"`
}

// GenerateCAConfig describes an in-memory CA created at startup.
type GenerateCAConfig struct {
	// IssuerDN is the CA subject, for example "CN=tlsrelay CA,O=Example".
	IssuerDN string `yaml:"issuer_dn"`

	// Validity is the lifetime of the generated CA certificate.
	// Default: 8760h
	Validity time.Duration `yaml:"validity"`
}

// LedgerConfig configures the issuance ledger.
type LedgerConfig struct {
	// Backend is "memory", "sqlite" (pure Go), "sqlite3" (cgo) or "none".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Path is the database file for SQLite backends.
	// Default: "data/issued.db"
	Path string `yaml:"path"`

	// Retention is how long records are kept. Zero keeps them forever.
	Retention time.Duration `yaml:"retention"`

	// PruneSchedule is the cron expression for retention pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Admin contains the admin HTTP endpoint configuration.
	Admin AdminConfig `yaml:"admin"`

	// ExpiryCheck contains the certificate expiry monitor configuration.
	ExpiryCheck ExpiryCheckConfig `yaml:"expiry_check"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks passwords and private keys in log attributes.
	// Default: true
	RedactSecrets *bool `yaml:"redact_secrets"`
}

// Redact reports whether secret redaction is on.
func (c LoggingConfig) Redact() bool {
	return c.RedactSecrets == nil || *c.RedactSecrets
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric name prefix.
	// Default: "tlsrelay"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	Subsystem string `yaml:"subsystem"`

	// DurationBuckets defines histogram buckets for connection duration (seconds).
	// Default: [0.01, 0.1, 0.5, 1, 5, 30, 120, 600, 3600]
	DurationBuckets []float64 `yaml:"duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of connections to trace (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Exporter determines the trace exporter to use.
	// Options: "otlp", "none"
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "tlsrelay"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for the OTLP connection.
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// AdminConfig configures the HTTP endpoint serving /metrics, /health and /ready.
type AdminConfig struct {
	// Enabled starts the admin server.
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the admin server address.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`
}

// ExpiryCheckConfig configures the certificate expiry monitor.
type ExpiryCheckConfig struct {
	// Schedule is the cron expression for expiry checks. Empty disables the
	// monitor.
	// Default: "@every 1h"
	Schedule string `yaml:"schedule"`

	// WarnBefore is how long before expiry a warning is logged.
	// Default: 720h
	WarnBefore time.Duration `yaml:"warn_before"`
}
