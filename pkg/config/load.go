package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "TLSRELAY_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention TLSRELAY_SECTION_FIELD (e.g., TLSRELAY_TELEMETRY_LOGGING_LEVEL).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Overrides that fail to parse are ignored.
func applyEnvOverrides(cfg *Config) {
	// Proxy overrides
	envDuration("PROXY_DIAL_TIMEOUT", &cfg.Proxy.DialTimeout)
	envDuration("PROXY_HANDSHAKE_TIMEOUT", &cfg.Proxy.HandshakeTimeout)
	envDuration("PROXY_SHUTDOWN_TIMEOUT", &cfg.Proxy.ShutdownTimeout)
	envInt("PROXY_WRITE_QUEUE_SIZE", &cfg.Proxy.WriteQueueSize)
	envInt("PROXY_READ_BUFFER_SIZE", &cfg.Proxy.ReadBufferSize)

	// TLS overrides
	envBool("UPSTREAM_TLS_ENABLED", &cfg.UpstreamTLS.Enabled)
	envBool("UPSTREAM_TLS_CLIENT_AUTH_REQUIRED", &cfg.UpstreamTLS.ClientAuthRequired)
	envString("UPSTREAM_TLS_MIN_VERSION", &cfg.UpstreamTLS.MinVersion)
	envStore("UPSTREAM_TLS_KEY_STORE_", &cfg.UpstreamTLS.KeyStore)
	envStore("UPSTREAM_TLS_TRUST_STORE_", &cfg.UpstreamTLS.TrustStore)

	envBool("DOWNSTREAM_TLS_ENABLED", &cfg.DownstreamTLS.Enabled)
	envString("DOWNSTREAM_TLS_MIN_VERSION", &cfg.DownstreamTLS.MinVersion)
	envStore("DOWNSTREAM_TLS_KEY_STORE_", &cfg.DownstreamTLS.KeyStore)
	envStore("DOWNSTREAM_TLS_TRUST_STORE_", &cfg.DownstreamTLS.TrustStore)
	if val := os.Getenv(EnvPrefix + "DOWNSTREAM_TLS_HOSTNAME_VERIFICATION"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.DownstreamTLS.HostnameVerification = &b
		}
	}

	// Issuance overrides
	envBool("ISSUANCE_ENABLED", &cfg.Issuance.Enabled)
	envString("ISSUANCE_SIGNATURE_ALGORITHM", &cfg.Issuance.SignatureAlgorithm)
	envDuration("ISSUANCE_VALIDITY", &cfg.Issuance.Validity)
	envString("ISSUANCE_IDENTITY_MAPPING", &cfg.Issuance.IdentityMapping)
	envString("ISSUANCE_CA_KEY_ALIAS", &cfg.Issuance.CA.KeyAlias)
	envString("ISSUANCE_CA_GENERATE_ISSUER_DN", &cfg.Issuance.CA.Generate.IssuerDN)
	envStore("ISSUANCE_CA_KEY_STORE_", &cfg.Issuance.CA.KeyStore)
	envString("ISSUANCE_LEDGER_BACKEND", &cfg.Issuance.Ledger.Backend)
	envString("ISSUANCE_LEDGER_PATH", &cfg.Issuance.Ledger.Path)
	envDuration("ISSUANCE_LEDGER_RETENTION", &cfg.Issuance.Ledger.Retention)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
	envBool("TELEMETRY_ADMIN_ENABLED", &cfg.Telemetry.Admin.Enabled)
	envString("TELEMETRY_ADMIN_LISTEN_ADDRESS", &cfg.Telemetry.Admin.ListenAddress)
}

// envStore applies overrides for one store. A path set only through the
// environment also receives the store defaults.
func envStore(prefix string, s *keystore.StoreConfig) {
	envString(prefix+"PATH", &s.Path)
	if val := os.Getenv(EnvPrefix + prefix + "TYPE"); val != "" {
		s.Type = keystore.StoreType(val)
	}
	envString(prefix+"PASSWORD", &s.Password)
	envString(prefix+"PASSWORD_FILE", &s.PasswordFile)
	envString(prefix+"PASSWORD_ENV", &s.PasswordEnv)
	if val := os.Getenv(EnvPrefix + prefix + "RELOAD_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			s.SetReloadInterval(d)
		}
	}
	applyStoreDefaults(s)
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
