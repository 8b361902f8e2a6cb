package config

import (
	"testing"
	"time"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

func TestApplyDefaults(t *testing.T) {
	tests := []struct {
		name  string
		input Config
		check func(*testing.T, *Config)
	}{
		{
			name:  "empty config gets all defaults",
			input: Config{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Proxy.DialTimeout != DefaultDialTimeout {
					t.Errorf("expected dial timeout %v, got %v", DefaultDialTimeout, cfg.Proxy.DialTimeout)
				}
				if cfg.Proxy.WriteQueueSize != DefaultWriteQueueSize {
					t.Errorf("expected write queue size %d, got %d", DefaultWriteQueueSize, cfg.Proxy.WriteQueueSize)
				}
				if cfg.UpstreamTLS.MinVersion != "1.2" || cfg.DownstreamTLS.MinVersion != "1.2" {
					t.Errorf("expected TLS 1.2 minimum, got %q / %q", cfg.UpstreamTLS.MinVersion, cfg.DownstreamTLS.MinVersion)
				}
				if cfg.Issuance.Validity != DefaultIssuanceValidity {
					t.Errorf("expected validity %v, got %v", DefaultIssuanceValidity, cfg.Issuance.Validity)
				}
				if cfg.Issuance.CA.KeyAlias != keystore.DefaultKeyAlias {
					t.Errorf("expected CA alias %q, got %q", keystore.DefaultKeyAlias, cfg.Issuance.CA.KeyAlias)
				}
				if cfg.Telemetry.Logging.Level != DefaultLoggingLevel {
					t.Errorf("expected log level %q, got %q", DefaultLoggingLevel, cfg.Telemetry.Logging.Level)
				}
				if !cfg.Telemetry.Logging.Redact() {
					t.Error("expected secret redaction on by default")
				}
				if !cfg.DownstreamTLS.VerifyHostname() {
					t.Error("expected hostname verification on by default")
				}
				if cfg.UpstreamTLS.KeyStore.Type != "" {
					t.Error("unconfigured store should not receive defaults")
				}
			},
		},
		{
			name: "explicit values are kept",
			input: Config{
				Proxy: ProxyConfig{DialTimeout: 3 * time.Second, WriteQueueSize: 8},
				UpstreamTLS: UpstreamTLSConfig{
					KeyStore: keystore.StoreConfig{Path: "server.pem", Type: keystore.TypePEM, ReloadInterval: -1},
				},
				Telemetry: TelemetryConfig{Logging: LoggingConfig{Level: "debug"}},
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Proxy.DialTimeout != 3*time.Second {
					t.Errorf("dial timeout overwritten: %v", cfg.Proxy.DialTimeout)
				}
				if cfg.Proxy.WriteQueueSize != 8 {
					t.Errorf("write queue size overwritten: %d", cfg.Proxy.WriteQueueSize)
				}
				if cfg.UpstreamTLS.KeyStore.Type != keystore.TypePEM {
					t.Errorf("store type overwritten: %q", cfg.UpstreamTLS.KeyStore.Type)
				}
				if cfg.UpstreamTLS.KeyStore.ReloadInterval != -1 {
					t.Errorf("negative reload interval overwritten: %v", cfg.UpstreamTLS.KeyStore.ReloadInterval)
				}
				if cfg.Telemetry.Logging.Level != "debug" {
					t.Errorf("log level overwritten: %q", cfg.Telemetry.Logging.Level)
				}
			},
		},
		{
			name: "configured store gets type and interval",
			input: Config{
				DownstreamTLS: DownstreamTLSConfig{TrustStore: keystore.StoreConfig{Path: "ca.p12"}},
			},
			check: func(t *testing.T, cfg *Config) {
				s := cfg.DownstreamTLS.TrustStore
				if s.Type != keystore.TypePKCS12 {
					t.Errorf("expected PKCS12, got %q", s.Type)
				}
				if s.ReloadInterval != DefaultStoreReloadInterval {
					t.Errorf("expected reload interval %v, got %v", DefaultStoreReloadInterval, s.ReloadInterval)
				}
			},
		},
		{
			name:  "channel names",
			input: Config{Proxy: ProxyConfig{Channels: []ChannelConfig{{}, {Name: "named"}}}},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Proxy.Channels[0].Name != "channel-0" {
					t.Errorf("expected generated name, got %q", cfg.Proxy.Channels[0].Name)
				}
				if cfg.Proxy.Channels[1].Name != "named" {
					t.Errorf("expected explicit name, got %q", cfg.Proxy.Channels[1].Name)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.input
			ApplyDefaults(&cfg)
			tt.check(t, &cfg)
		})
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := MinimalConfig()
	before := *cfg
	ApplyDefaults(cfg)

	if cfg.Proxy.DialTimeout != before.Proxy.DialTimeout || cfg.Telemetry.Logging.Format != before.Telemetry.Logging.Format {
		t.Error("ApplyDefaults changed an already defaulted config")
	}
	if len(cfg.Telemetry.Metrics.DurationBuckets) != len(DefaultDurationBuckets) {
		t.Errorf("unexpected bucket count %d", len(cfg.Telemetry.Metrics.DurationBuckets))
	}
}
