package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

// ErrNoPeerCertificate is returned when the server sent no certificate.
var ErrNoPeerCertificate = errors.New("server presented no certificate")

// ClientOptions configures the downstream (client side) TLS context.
type ClientOptions struct {
	// TrustManager supplies the CAs server certificates are verified
	// against. Nil uses the system roots.
	TrustManager *keystore.Manager

	// HostnameVerifier checks the verified server certificate against the
	// dialed host. Nil selects StrictHostnameVerifier.
	HostnameVerifier HostnameVerifier

	// MinVersion is the minimum TLS version. Zero selects TLS 1.2.
	MinVersion uint16

	// CipherSuites restricts TLS 1.2 cipher suites. Nil uses Go defaults.
	CipherSuites []uint16

	// SystemRoots overrides the system pool, mainly for tests.
	SystemRoots func() (*x509.CertPool, error)
}

// ClientBuilder produces per-connection client TLS configurations.
type ClientBuilder struct {
	opts ClientOptions
}

// NewClientBuilder returns a builder for opts.
func NewClientBuilder(opts ClientOptions) (*ClientBuilder, error) {
	if opts.HostnameVerifier == nil {
		opts.HostnameVerifier = StrictHostnameVerifier{}
	}
	if opts.MinVersion == 0 {
		opts.MinVersion = tls.VersionTLS12
	}
	if opts.SystemRoots == nil {
		opts.SystemRoots = x509.SystemCertPool
	}
	return &ClientBuilder{opts: opts}, nil
}

// Config returns a client configuration for one connection to serverName,
// presenting the first key entry of identity (if any) as client certificate.
//
// Standard verification is replaced by VerifyConnection so that the trust
// bundle is resolved at handshake time and hostname checks go through the
// configured HostnameVerifier.
func (b *ClientBuilder) Config(serverName string, identity *keystore.Bundle) *tls.Config {
	// #nosec G402 - the chain is verified in VerifyConnection
	return &tls.Config{
		ServerName:         serverName,
		MinVersion:         b.opts.MinVersion,
		CipherSuites:       b.opts.CipherSuites,
		InsecureSkipVerify: true,
		VerifyConnection: func(cs tls.ConnectionState) error {
			return b.verify(serverName, cs)
		},
		GetClientCertificate: func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			if c, ok := identity.TLSCertificate(); ok {
				return c, nil
			}
			// An empty certificate lets the server decide whether it needs one.
			return &tls.Certificate{}, nil
		},
	}
}

func (b *ClientBuilder) verify(serverName string, cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return ErrNoPeerCertificate
	}

	roots, err := b.roots()
	if err != nil {
		return err
	}

	intermediates := x509.NewCertPool()
	for _, c := range cs.PeerCertificates[1:] {
		intermediates.AddCert(c)
	}

	leaf := cs.PeerCertificates[0]
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}); err != nil {
		return fmt.Errorf("server certificate verification failed: %w", err)
	}

	return b.opts.HostnameVerifier.Verify(serverName, leaf)
}

func (b *ClientBuilder) roots() (*x509.CertPool, error) {
	if b.opts.TrustManager != nil {
		return b.opts.TrustManager.Get().CertPool(), nil
	}
	pool, err := b.opts.SystemRoots()
	if err != nil {
		return nil, fmt.Errorf("failed to load system roots: %w", err)
	}
	return pool, nil
}
