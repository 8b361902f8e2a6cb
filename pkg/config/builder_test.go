package config

import "mercator-hq/tlsrelay/pkg/security/keystore"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with sensible defaults for testing.
// The resulting configuration is valid and can be used immediately.
func NewTestConfig() *ConfigBuilder {
	cfg := Config{
		Proxy: ProxyConfig{
			Channels: []ChannelConfig{{
				Name:       "test",
				Upstream:   EndpointConfig{Host: "127.0.0.1", Port: 0},
				Downstream: EndpointConfig{Host: "127.0.0.1", Port: 9000},
			}},
		},
	}
	ApplyDefaults(&cfg)
	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithChannel appends a channel.
func (b *ConfigBuilder) WithChannel(name string, upstreamPort int, downstreamHost string, downstreamPort int) *ConfigBuilder {
	b.cfg.Proxy.Channels = append(b.cfg.Proxy.Channels, ChannelConfig{
		Name:       name,
		Upstream:   EndpointConfig{Host: "127.0.0.1", Port: upstreamPort},
		Downstream: EndpointConfig{Host: downstreamHost, Port: downstreamPort},
	})
	return b
}

// WithUpstreamTLS enables upstream TLS with the given key store.
func (b *ConfigBuilder) WithUpstreamTLS(keyStorePath string) *ConfigBuilder {
	b.cfg.UpstreamTLS.Enabled = true
	b.cfg.UpstreamTLS.KeyStore = keystore.StoreConfig{Path: keyStorePath}
	ApplyDefaults(&b.cfg)
	return b
}

// WithClientAuth requires client certificates verified against trustStorePath.
func (b *ConfigBuilder) WithClientAuth(trustStorePath string) *ConfigBuilder {
	b.cfg.UpstreamTLS.ClientAuthRequired = true
	b.cfg.UpstreamTLS.TrustStore = keystore.StoreConfig{Path: trustStorePath, Type: keystore.TypePEM}
	ApplyDefaults(&b.cfg)
	return b
}

// WithDownstreamTLS enables downstream TLS.
func (b *ConfigBuilder) WithDownstreamTLS() *ConfigBuilder {
	b.cfg.DownstreamTLS.Enabled = true
	return b
}

// WithGeneratedCA enables issuance from a generated CA.
func (b *ConfigBuilder) WithGeneratedCA(issuerDN string) *ConfigBuilder {
	b.cfg.Issuance.Enabled = true
	b.cfg.Issuance.CA.Generate.IssuerDN = issuerDN
	return b
}

// WithLoggingLevel sets the logging level.
func (b *ConfigBuilder) WithLoggingLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}

// WithTracing enables tracing with the given endpoint.
func (b *ConfigBuilder) WithTracing(endpoint string) *ConfigBuilder {
	b.cfg.Telemetry.Tracing.Enabled = true
	b.cfg.Telemetry.Tracing.Endpoint = endpoint
	return b
}

// MinimalConfig returns a minimal valid configuration for testing.
func MinimalConfig() *Config {
	return NewTestConfig().Build()
}
