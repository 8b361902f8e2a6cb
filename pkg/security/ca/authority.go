package ca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"time"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

const (
	// DefaultKeyBits is the RSA modulus size of issued leaves.
	DefaultKeyBits = 2048

	// LeafAlias is the alias of the key entry in issued bundles.
	LeafAlias = keystore.DefaultKeyAlias
)

var (
	// ErrCAKeyNotFound is returned when the CA store has no key entry under
	// the configured alias.
	ErrCAKeyNotFound = errors.New("CA key entry not found")

	// ErrInvalidValidity is returned when notAfter is not after notBefore.
	ErrInvalidValidity = errors.New("certificate validity window is empty")
)

// serialLimit bounds random serial numbers to 128 bits.
var serialLimit = new(big.Int).Lsh(big.NewInt(1), 128)

// CertificateAuthority signs leaf certificates with the key entry stored
// under a fixed alias in a managed store.
type CertificateAuthority struct {
	material *keystore.Manager
	alias    string
	keyBits  int
	rand     io.Reader
}

// Option configures a CertificateAuthority.
type Option func(*CertificateAuthority)

// WithKeyBits sets the RSA key size of issued leaves.
func WithKeyBits(bits int) Option {
	return func(c *CertificateAuthority) {
		if bits > 0 {
			c.keyBits = bits
		}
	}
}

// WithRand replaces crypto/rand as the randomness source.
func WithRand(r io.Reader) Option {
	return func(c *CertificateAuthority) { c.rand = r }
}

// New creates a CA backed by the key entry alias of the managed store. The
// entry is looked up on every issuance.
func New(material *keystore.Manager, alias string, opts ...Option) *CertificateAuthority {
	if alias == "" {
		alias = keystore.DefaultKeyAlias
	}
	c := &CertificateAuthority{
		material: material,
		alias:    alias,
		keyBits:  DefaultKeyBits,
		rand:     rand.Reader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Alias returns the alias of the CA key entry.
func (c *CertificateAuthority) Alias() string {
	return c.alias
}

// IssueOption adds optional fields to an issued certificate.
type IssueOption func(*x509.Certificate)

// WithDNSNames adds DNS subject alternative names.
func WithDNSNames(names ...string) IssueOption {
	return func(t *x509.Certificate) { t.DNSNames = append(t.DNSNames, names...) }
}

// WithIPAddresses adds IP subject alternative names.
func WithIPAddresses(ips ...net.IP) IssueOption {
	return func(t *x509.Certificate) { t.IPAddresses = append(t.IPAddresses, ips...) }
}

// IssueCertificate mints a leaf for subject, valid from notBefore to
// notAfter, signed with alg by the current CA key. alg may be
// x509.UnknownSignatureAlgorithm to use the default for the CA key type.
//
// The returned bundle has one key entry (alias LeafAlias) whose chain is the
// leaf alone.
func (c *CertificateAuthority) IssueCertificate(subject pkix.Name, notBefore, notAfter time.Time, alg x509.SignatureAlgorithm, opts ...IssueOption) (*keystore.Bundle, error) {
	if !notAfter.After(notBefore) {
		return nil, ErrInvalidValidity
	}

	entry, err := c.signer()
	if err != nil {
		return nil, err
	}

	key, err := rsa.GenerateKey(c.rand, c.keyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %d-bit RSA key: %w", c.keyBits, err)
	}

	serial, err := rand.Int(c.rand, serialLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber:       serial,
		Subject:            subject,
		NotBefore:          notBefore,
		NotAfter:           notAfter,
		SignatureAlgorithm: alg,
		KeyUsage:           x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:        []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	for _, opt := range opts {
		opt(template)
	}

	der, err := x509.CreateCertificate(c.rand, template, entry.Leaf(), &key.PublicKey, entry.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign certificate: %w", err)
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issued certificate: %w", err)
	}

	return keystore.NewBundle([]keystore.KeyEntry{{
		Alias:      LeafAlias,
		PrivateKey: key,
		Chain:      []*x509.Certificate{leaf},
	}}, nil, "")
}

// TrustAnchor returns the current CA certificate.
func (c *CertificateAuthority) TrustAnchor() (*x509.Certificate, error) {
	entry, err := c.signer()
	if err != nil {
		return nil, err
	}
	return entry.Leaf(), nil
}

// TrustStore returns a bundle trusting the current CA certificate.
func (c *CertificateAuthority) TrustStore() (*keystore.Bundle, error) {
	anchor, err := c.TrustAnchor()
	if err != nil {
		return nil, err
	}
	return keystore.NewTrustBundle(anchor)
}

func (c *CertificateAuthority) signer() (keystore.KeyEntry, error) {
	entry, ok := c.material.Get().KeyEntry(c.alias)
	if !ok {
		return keystore.KeyEntry{}, fmt.Errorf("%w: alias %q in store %s", ErrCAKeyNotFound, c.alias, c.material.Name())
	}
	return entry, nil
}
