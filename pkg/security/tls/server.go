package tls

import (
	"crypto/tls"
	"errors"
	"fmt"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

// ErrNoServerCertificate is returned during a handshake when the key manager
// holds no key entry.
var ErrNoServerCertificate = errors.New("no server certificate available")

// ServerOptions configures the upstream (server side) TLS context.
type ServerOptions struct {
	// KeyManager supplies the server certificate and key. Required.
	KeyManager *keystore.Manager

	// TrustManager supplies the CAs client certificates are verified
	// against. Nil disables client authentication.
	TrustManager *keystore.Manager

	// RequireClientCert rejects clients without a valid certificate.
	// Requires TrustManager.
	RequireClientCert bool

	// MinVersion is the minimum TLS version. Zero selects TLS 1.2.
	MinVersion uint16

	// CipherSuites restricts TLS 1.2 cipher suites. Nil uses Go defaults.
	CipherSuites []uint16
}

// ServerBuilder produces server TLS configurations bound to managed material.
type ServerBuilder struct {
	opts ServerOptions
}

// NewServerBuilder validates opts and returns a builder.
func NewServerBuilder(opts ServerOptions) (*ServerBuilder, error) {
	if opts.KeyManager == nil {
		return nil, fmt.Errorf("server TLS requires a key manager")
	}
	if opts.RequireClientCert && opts.TrustManager == nil {
		return nil, fmt.Errorf("client certificate required but no trust manager configured")
	}
	if opts.MinVersion == 0 {
		opts.MinVersion = tls.VersionTLS12
	}
	return &ServerBuilder{opts: opts}, nil
}

// ClientAuth returns the client authentication mode implied by the options.
func (b *ServerBuilder) ClientAuth() tls.ClientAuthType {
	switch {
	case b.opts.TrustManager == nil:
		return tls.NoClientCert
	case b.opts.RequireClientCert:
		return tls.RequireAndVerifyClientCert
	default:
		return tls.VerifyClientCertIfGiven
	}
}

// Config returns a server configuration. Key and trust material are
// resolved from the managers on every handshake.
func (b *ServerBuilder) Config() *tls.Config {
	// #nosec G402 - MinVersion is validated to TLS 1.2 or newer
	return &tls.Config{
		MinVersion: b.opts.MinVersion,
		GetConfigForClient: func(*tls.ClientHelloInfo) (*tls.Config, error) {
			return b.handshakeConfig()
		},
	}
}

func (b *ServerBuilder) handshakeConfig() (*tls.Config, error) {
	certs := b.opts.KeyManager.Get().TLSCertificates()
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w in store %s", ErrNoServerCertificate, b.opts.KeyManager.Name())
	}

	// #nosec G402 - MinVersion is validated to TLS 1.2 or newer
	cfg := &tls.Config{
		Certificates: certs,
		MinVersion:   b.opts.MinVersion,
		CipherSuites: b.opts.CipherSuites,
		ClientAuth:   b.ClientAuth(),
	}
	if b.opts.TrustManager != nil {
		cfg.ClientCAs = b.opts.TrustManager.Get().CertPool()
	}
	return cfg, nil
}
