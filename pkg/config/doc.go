// Package config provides configuration management for tlsrelay.
//
// This package handles loading, validating, and defaulting configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("tlsrelay.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("tlsrelay.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention TLSRELAY_SECTION_FIELD.
// For example:
//
//   - TLSRELAY_UPSTREAM_TLS_KEY_STORE_PATH overrides upstream_tls.key_store.path
//   - TLSRELAY_ISSUANCE_ENABLED overrides issuance.enabled
//   - TLSRELAY_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Channels can only be configured in the file.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Example
//
//	proxy:
//	  channels:
//	    - name: billing
//	      upstream: {host: 0.0.0.0, port: 8443}
//	      downstream: {host: billing.internal, port: 443}
//	upstream_tls:
//	  enabled: true
//	  key_store: {path: /etc/tlsrelay/server.p12, password_file: /run/secrets/server-pw}
//	  trust_store: {path: /etc/tlsrelay/clients.pem, type: PEM}
//	  client_auth_required: true
//	downstream_tls:
//	  enabled: true
//	  trust_store: {path: /etc/tlsrelay/backend-ca.pem, type: PEM}
//	issuance:
//	  enabled: true
//	  ca:
//	    generate: {issuer_dn: "CN=tlsrelay CA,O=Example"}
package config
