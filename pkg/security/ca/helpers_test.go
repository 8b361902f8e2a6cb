package ca

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"testing"
	"time"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

// newTestAuthority generates a CA and wraps it in a manager.
func newTestAuthority(t *testing.T, cn string) (*CertificateAuthority, *x509.Certificate) {
	t.Helper()

	b, err := GenerateAuthority(GenerateOptions{
		Subject:  pkix.Name{CommonName: cn, Organization: []string{"Relay Test"}},
		NotAfter: time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("GenerateAuthority: %v", err)
	}
	caCert, _ := b.Certificate(keystore.DefaultKeyAlias)

	m := keystore.NewManager(keystore.StaticLoader(b), time.Hour, keystore.WithName("ca"))
	return New(m, keystore.DefaultKeyAlias), caCert
}
