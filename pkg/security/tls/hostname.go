package tls

import (
	"crypto/x509"
	"fmt"
	"strings"
)

// HostnameVerifier decides whether a verified server certificate is
// acceptable for the host that was dialed.
type HostnameVerifier interface {
	Verify(host string, cert *x509.Certificate) error
}

// HostnameVerifierFunc adapts a function to HostnameVerifier.
type HostnameVerifierFunc func(host string, cert *x509.Certificate) error

// Verify calls f.
func (f HostnameVerifierFunc) Verify(host string, cert *x509.Certificate) error {
	return f(host, cert)
}

// HostnameMismatchError reports a server certificate that does not cover
// the dialed host.
type HostnameMismatchError struct {
	Host     string
	DNSNames []string
	IPs      []string
	Err      error
}

// Error implements the error interface.
func (e *HostnameMismatchError) Error() string {
	names := append(append([]string(nil), e.DNSNames...), e.IPs...)
	return fmt.Sprintf("server certificate is not valid for host %q (certificate names: %s)", e.Host, strings.Join(names, ", "))
}

// Unwrap returns the underlying verification error.
func (e *HostnameMismatchError) Unwrap() error {
	return e.Err
}

// StrictHostnameVerifier requires the host to match a DNS or IP subject
// alternative name, following crypto/x509 matching rules. The common name is
// not consulted.
type StrictHostnameVerifier struct{}

// Verify checks host against cert.
func (StrictHostnameVerifier) Verify(host string, cert *x509.Certificate) error {
	if err := cert.VerifyHostname(host); err != nil {
		mismatch := &HostnameMismatchError{Host: host, DNSNames: cert.DNSNames, Err: err}
		for _, ip := range cert.IPAddresses {
			mismatch.IPs = append(mismatch.IPs, ip.String())
		}
		return mismatch
	}
	return nil
}

// NoopHostnameVerifier accepts every host. The chain is still verified.
type NoopHostnameVerifier struct{}

// Verify always succeeds.
func (NoopHostnameVerifier) Verify(string, *x509.Certificate) error {
	return nil
}
