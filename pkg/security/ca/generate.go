package ca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"time"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

// GenerateOptions describes a self-signed CA.
type GenerateOptions struct {
	Subject            pkix.Name
	NotBefore          time.Time
	NotAfter           time.Time
	KeyBits            int
	SignatureAlgorithm x509.SignatureAlgorithm

	// Alias of the key entry in the returned bundle. Defaults to
	// keystore.DefaultKeyAlias.
	Alias string
}

// GenerateAuthority creates a self-signed CA key and certificate. The
// certificate may only sign end-entity certificates.
func GenerateAuthority(opts GenerateOptions) (*keystore.Bundle, error) {
	if opts.KeyBits == 0 {
		opts.KeyBits = DefaultKeyBits
	}
	if opts.Alias == "" {
		opts.Alias = keystore.DefaultKeyAlias
	}
	if opts.NotBefore.IsZero() {
		opts.NotBefore = time.Now()
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = opts.NotBefore.AddDate(1, 0, 0)
	}
	if !opts.NotAfter.After(opts.NotBefore) {
		return nil, ErrInvalidValidity
	}

	key, err := rsa.GenerateKey(rand.Reader, opts.KeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, serialLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               opts.Subject,
		NotBefore:             opts.NotBefore,
		NotAfter:              opts.NotAfter,
		SignatureAlgorithm:    opts.SignatureAlgorithm,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return keystore.NewBundle([]keystore.KeyEntry{{
		Alias:      opts.Alias,
		PrivateKey: key,
		Chain:      []*x509.Certificate{cert},
	}}, nil, "")
}
