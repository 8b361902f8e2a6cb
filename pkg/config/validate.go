package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/tlsrelay/pkg/security/ca"
	"mercator-hq/tlsrelay/pkg/security/keystore"
	tlsutil "mercator-hq/tlsrelay/pkg/security/tls"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "proxy.dial_timeout").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateUpstreamTLS(&cfg.UpstreamTLS)...)
	errs = append(errs, validateDownstreamTLS(&cfg.DownstreamTLS)...)
	errs = append(errs, validateIssuance(&cfg.Issuance, &cfg.DownstreamTLS)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateProxy validates the channel list and connection settings.
func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if len(cfg.Channels) == 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.channels",
			Message: "at least one channel must be configured",
		})
	}

	names := make(map[string]bool)
	listeners := make(map[string]bool)
	for i, ch := range cfg.Channels {
		prefix := fmt.Sprintf("proxy.channels[%d]", i)

		if ch.Name != "" {
			if names[ch.Name] {
				errs = append(errs, FieldError{Field: prefix + ".name", Message: fmt.Sprintf("duplicate channel name %q", ch.Name)})
			}
			names[ch.Name] = true
		}

		// Port 0 picks an ephemeral port, which is only useful in tests.
		if ch.Upstream.Port < 0 || ch.Upstream.Port > 65535 {
			errs = append(errs, FieldError{Field: prefix + ".upstream.port", Message: "port must be between 0 and 65535"})
		} else if ch.Upstream.Port != 0 {
			addr := ch.Upstream.Address()
			if listeners[addr] {
				errs = append(errs, FieldError{Field: prefix + ".upstream", Message: fmt.Sprintf("address %s is used by another channel", addr)})
			}
			listeners[addr] = true
		}

		if ch.Downstream.Host == "" {
			errs = append(errs, FieldError{Field: prefix + ".downstream.host", Message: "downstream host is required"})
		}
		if ch.Downstream.Port < 1 || ch.Downstream.Port > 65535 {
			errs = append(errs, FieldError{Field: prefix + ".downstream.port", Message: "port must be between 1 and 65535"})
		}
	}

	if cfg.DialTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.dial_timeout", Message: "dial timeout must be positive"})
	}
	if cfg.HandshakeTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.handshake_timeout", Message: "handshake timeout must be positive"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.shutdown_timeout", Message: "shutdown timeout must be positive"})
	}
	if cfg.WriteQueueSize < 1 {
		errs = append(errs, FieldError{Field: "proxy.write_queue_size", Message: "write queue size must be at least 1"})
	}
	if cfg.ReadBufferSize < 512 {
		errs = append(errs, FieldError{Field: "proxy.read_buffer_size", Message: "read buffer size must be at least 512 bytes"})
	}

	return errs
}

// validateUpstreamTLS validates server side TLS settings.
func validateUpstreamTLS(cfg *UpstreamTLSConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		if cfg.ClientAuthRequired {
			errs = append(errs, FieldError{
				Field:   "upstream_tls.client_auth_required",
				Message: "client authentication requires upstream TLS to be enabled",
			})
		}
		return errs
	}

	if cfg.KeyStore.IsZero() {
		errs = append(errs, FieldError{Field: "upstream_tls.key_store.path", Message: "key store is required when upstream TLS is enabled"})
	} else {
		errs = append(errs, validateStore("upstream_tls.key_store", &cfg.KeyStore)...)
	}

	if cfg.TrustStore.IsZero() {
		if cfg.ClientAuthRequired {
			errs = append(errs, FieldError{
				Field:   "upstream_tls.trust_store",
				Message: "client authentication is required but no trust store is configured",
			})
		}
	} else {
		errs = append(errs, validateStore("upstream_tls.trust_store", &cfg.TrustStore)...)
	}

	errs = append(errs, validateProtocol("upstream_tls", cfg.MinVersion, cfg.CipherSuites)...)

	return errs
}

// validateDownstreamTLS validates client side TLS settings.
func validateDownstreamTLS(cfg *DownstreamTLSConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	if !cfg.TrustStore.IsZero() {
		errs = append(errs, validateStore("downstream_tls.trust_store", &cfg.TrustStore)...)
	}
	if !cfg.KeyStore.IsZero() {
		errs = append(errs, validateStore("downstream_tls.key_store", &cfg.KeyStore)...)
	}

	errs = append(errs, validateProtocol("downstream_tls", cfg.MinVersion, cfg.CipherSuites)...)

	return errs
}

// validateIssuance validates on-demand certificate settings.
func validateIssuance(cfg *IssuanceConfig, downstream *DownstreamTLSConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	if !downstream.Enabled {
		errs = append(errs, FieldError{Field: "issuance.enabled", Message: "issuance requires downstream TLS to be enabled"})
	}

	switch {
	case !cfg.CA.KeyStore.IsZero():
		errs = append(errs, validateStore("issuance.ca.key_store", &cfg.CA.KeyStore)...)
	case cfg.CA.Generate.IssuerDN != "":
		if _, err := ca.ParseDN(cfg.CA.Generate.IssuerDN); err != nil {
			errs = append(errs, FieldError{Field: "issuance.ca.generate.issuer_dn", Message: err.Error()})
		}
		if cfg.CA.Generate.Validity <= 0 {
			errs = append(errs, FieldError{Field: "issuance.ca.generate.validity", Message: "validity must be positive"})
		}
	default:
		errs = append(errs, FieldError{Field: "issuance.ca", Message: "either ca.key_store or ca.generate.issuer_dn is required"})
	}

	if cfg.SignatureAlgorithm != "" {
		if _, err := ca.ParseSignatureAlgorithm(cfg.SignatureAlgorithm); err != nil {
			errs = append(errs, FieldError{Field: "issuance.signature_algorithm", Message: err.Error()})
		}
	}
	if cfg.Validity <= 0 {
		errs = append(errs, FieldError{Field: "issuance.validity", Message: "validity must be positive"})
	}
	if cfg.KeyBits < 2048 {
		errs = append(errs, FieldError{Field: "issuance.key_bits", Message: "key size must be at least 2048 bits"})
	}
	if _, err := ca.ParseIdentityMapping(cfg.IdentityMapping); err != nil {
		errs = append(errs, FieldError{Field: "issuance.identity_mapping", Message: err.Error()})
	}

	validBackends := map[string]bool{"memory": true, "sqlite": true, "sqlite3": true, "none": true}
	if !validBackends[cfg.Ledger.Backend] {
		errs = append(errs, FieldError{
			Field:   "issuance.ledger.backend",
			Message: fmt.Sprintf("invalid backend %q (must be one of: memory, sqlite, sqlite3, none)", cfg.Ledger.Backend),
		})
	}
	if cfg.Ledger.Retention < 0 {
		errs = append(errs, FieldError{Field: "issuance.ledger.retention", Message: "retention must be non-negative"})
	}
	if cfg.Ledger.Retention > 0 {
		if _, err := cron.ParseStandard(cfg.Ledger.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "issuance.ledger.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be one of: debug, info, warn, error)", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be one of: json, text)", cfg.Logging.Format),
		})
	}

	if cfg.Tracing.Enabled {
		validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
		if !validSamplers[cfg.Tracing.Sampler] {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q (must be one of: always, never, ratio)", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0.0 and 1.0"})
		}
		validExporters := map[string]bool{"otlp": true, "none": true}
		if !validExporters[cfg.Tracing.Exporter] {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.exporter",
				Message: fmt.Sprintf("invalid exporter %q (must be one of: otlp, none)", cfg.Tracing.Exporter),
			})
		}
		if cfg.Tracing.Exporter == "otlp" && cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required for the otlp exporter"})
		}
	}

	if cfg.Admin.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Admin.ListenAddress); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.admin.listen_address",
				Message: fmt.Sprintf("invalid address: %v", err),
			})
		}
	}

	if cfg.ExpiryCheck.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.ExpiryCheck.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.expiry_check.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	if cfg.ExpiryCheck.WarnBefore < 0 {
		errs = append(errs, FieldError{Field: "telemetry.expiry_check.warn_before", Message: "warn_before must be non-negative"})
	}

	return errs
}

func validateStore(field string, s *keystore.StoreConfig) []FieldError {
	if err := s.Validate(); err != nil {
		return []FieldError{{Field: field, Message: err.Error()}}
	}
	return nil
}

func validateProtocol(field, minVersion string, suites []string) []FieldError {
	var errs []FieldError
	if _, err := tlsutil.ParseTLSVersion(minVersion); err != nil {
		errs = append(errs, FieldError{Field: field + ".min_version", Message: err.Error()})
	}
	if _, err := tlsutil.ParseCipherSuites(suites); err != nil {
		errs = append(errs, FieldError{Field: field + ".cipher_suites", Message: err.Error()})
	}
	return errs
}
