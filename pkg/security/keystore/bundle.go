package keystore

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// DefaultKeyAlias is the alias of the key entry in bundles built from files
// that carry no aliases of their own (PKCS#12 via go-pkcs12, PEM).
const DefaultKeyAlias = "key"

// KeyEntry is a private key with its certificate chain, leaf first.
type KeyEntry struct {
	Alias      string
	PrivateKey crypto.Signer
	Chain      []*x509.Certificate
}

// Leaf returns the first certificate of the chain, or nil.
func (e KeyEntry) Leaf() *x509.Certificate {
	if len(e.Chain) == 0 {
		return nil
	}
	return e.Chain[0]
}

// TrustedEntry is a certificate trusted as a verification anchor.
type TrustedEntry struct {
	Alias       string
	Certificate *x509.Certificate
}

// Bundle is an immutable snapshot of key and trust material together with
// the password that unlocked it.
type Bundle struct {
	keys        []KeyEntry
	trusted     []TrustedEntry
	keyPassword string
}

var emptyBundle = &Bundle{}

// EmptyBundle returns a bundle with no entries.
func EmptyBundle() *Bundle {
	return emptyBundle
}

// NewBundle builds a bundle from key and trusted entries. Aliases must be
// unique across both lists and every key entry needs a key and a chain whose
// leaf matches the key.
func NewBundle(keys []KeyEntry, trusted []TrustedEntry, keyPassword string) (*Bundle, error) {
	seen := make(map[string]struct{}, len(keys)+len(trusted))
	b := &Bundle{keyPassword: keyPassword}

	for _, k := range keys {
		if k.Alias == "" {
			return nil, fmt.Errorf("key entry has empty alias")
		}
		if _, dup := seen[k.Alias]; dup {
			return nil, fmt.Errorf("duplicate alias %q", k.Alias)
		}
		seen[k.Alias] = struct{}{}

		if k.PrivateKey == nil {
			return nil, fmt.Errorf("key entry %q has no private key", k.Alias)
		}
		if len(k.Chain) == 0 {
			return nil, fmt.Errorf("key entry %q has no certificate chain", k.Alias)
		}
		if !publicKeysEqual(k.PrivateKey.Public(), k.Chain[0].PublicKey) {
			return nil, fmt.Errorf("key entry %q: private key does not match leaf certificate", k.Alias)
		}

		chain := make([]*x509.Certificate, len(k.Chain))
		copy(chain, k.Chain)
		b.keys = append(b.keys, KeyEntry{Alias: k.Alias, PrivateKey: k.PrivateKey, Chain: chain})
	}

	for _, t := range trusted {
		if t.Alias == "" {
			return nil, fmt.Errorf("trusted entry has empty alias")
		}
		if _, dup := seen[t.Alias]; dup {
			return nil, fmt.Errorf("duplicate alias %q", t.Alias)
		}
		seen[t.Alias] = struct{}{}

		if t.Certificate == nil {
			return nil, fmt.Errorf("trusted entry %q has no certificate", t.Alias)
		}
		b.trusted = append(b.trusted, t)
	}

	return b, nil
}

// NewTrustBundle wraps certificates as trusted entries named by TrustedAlias.
func NewTrustBundle(certs ...*x509.Certificate) (*Bundle, error) {
	trusted := make([]TrustedEntry, 0, len(certs))
	for i, c := range certs {
		trusted = append(trusted, TrustedEntry{Alias: TrustedAlias(i), Certificate: c})
	}
	return NewBundle(nil, trusted, "")
}

// TrustedAlias names the i-th trusted entry of a bundle built without
// explicit aliases: "ca", "ca-1", "ca-2", ...
func TrustedAlias(i int) string {
	if i == 0 {
		return "ca"
	}
	return fmt.Sprintf("ca-%d", i)
}

// IsEmpty reports whether the bundle holds no entries at all.
func (b *Bundle) IsEmpty() bool {
	return b == nil || (len(b.keys) == 0 && len(b.trusted) == 0)
}

// Aliases returns all aliases, key entries first, in insertion order.
func (b *Bundle) Aliases() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.keys)+len(b.trusted))
	for _, k := range b.keys {
		out = append(out, k.Alias)
	}
	for _, t := range b.trusted {
		out = append(out, t.Alias)
	}
	return out
}

// KeyEntries returns a copy of the key entries.
func (b *Bundle) KeyEntries() []KeyEntry {
	if b == nil {
		return nil
	}
	out := make([]KeyEntry, len(b.keys))
	copy(out, b.keys)
	return out
}

// KeyEntry looks up a key entry by alias.
func (b *Bundle) KeyEntry(alias string) (KeyEntry, bool) {
	if b == nil {
		return KeyEntry{}, false
	}
	for _, k := range b.keys {
		if k.Alias == alias {
			return k, true
		}
	}
	return KeyEntry{}, false
}

// TrustedEntries returns a copy of the trusted entries.
func (b *Bundle) TrustedEntries() []TrustedEntry {
	if b == nil {
		return nil
	}
	out := make([]TrustedEntry, len(b.trusted))
	copy(out, b.trusted)
	return out
}

// TrustedCertificates returns the certificates of all trusted entries.
func (b *Bundle) TrustedCertificates() []*x509.Certificate {
	if b == nil {
		return nil
	}
	out := make([]*x509.Certificate, 0, len(b.trusted))
	for _, t := range b.trusted {
		out = append(out, t.Certificate)
	}
	return out
}

// Certificate returns the certificate stored under alias: the leaf of a key
// entry or the certificate of a trusted entry.
func (b *Bundle) Certificate(alias string) (*x509.Certificate, bool) {
	if k, ok := b.KeyEntry(alias); ok {
		return k.Leaf(), true
	}
	if b == nil {
		return nil, false
	}
	for _, t := range b.trusted {
		if t.Alias == alias {
			return t.Certificate, true
		}
	}
	return nil, false
}

// Certificates returns every certificate in the bundle: all key entry chains
// followed by the trusted certificates.
func (b *Bundle) Certificates() []*x509.Certificate {
	if b == nil {
		return nil
	}
	var out []*x509.Certificate
	for _, k := range b.keys {
		out = append(out, k.Chain...)
	}
	return append(out, b.TrustedCertificates()...)
}

// CertPool returns a pool of the trusted certificates.
func (b *Bundle) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	for _, c := range b.TrustedCertificates() {
		pool.AddCert(c)
	}
	return pool
}

// TLSCertificate returns the first key entry as a tls.Certificate.
func (b *Bundle) TLSCertificate() (*tls.Certificate, bool) {
	if b == nil || len(b.keys) == 0 {
		return nil, false
	}
	return toTLSCertificate(b.keys[0]), true
}

// TLSCertificates returns every key entry as a tls.Certificate.
func (b *Bundle) TLSCertificates() []tls.Certificate {
	if b == nil {
		return nil
	}
	out := make([]tls.Certificate, 0, len(b.keys))
	for _, k := range b.keys {
		out = append(out, *toTLSCertificate(k))
	}
	return out
}

// KeyPassword returns the password the key entries were unlocked with.
func (b *Bundle) KeyPassword() string {
	if b == nil {
		return ""
	}
	return b.keyPassword
}

func toTLSCertificate(k KeyEntry) *tls.Certificate {
	raw := make([][]byte, 0, len(k.Chain))
	for _, c := range k.Chain {
		raw = append(raw, c.Raw)
	}
	return &tls.Certificate{
		Certificate: raw,
		PrivateKey:  k.PrivateKey,
		Leaf:        k.Chain[0],
	}
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	eq, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return false
	}
	return eq.Equal(b)
}
