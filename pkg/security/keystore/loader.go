package keystore

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"mercator-hq/tlsrelay/pkg/security/secrets"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Loader produces a fresh Bundle each time it is called.
type Loader interface {
	Load() (*Bundle, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func() (*Bundle, error)

// Load calls f.
func (f LoaderFunc) Load() (*Bundle, error) {
	return f()
}

// StaticLoader always returns the same bundle.
func StaticLoader(b *Bundle) Loader {
	return LoaderFunc(func() (*Bundle, error) { return b, nil })
}

// FileLoader reads a store file and resolves its passwords on every Load, so
// rotated passwords are picked up together with rotated files.
type FileLoader struct {
	config   StoreConfig
	resolver *secrets.Resolver
	readFile func(string) ([]byte, error)
}

// FileLoaderOption configures a FileLoader.
type FileLoaderOption func(*FileLoader)

// WithResolver overrides the password resolver.
func WithResolver(r *secrets.Resolver) FileLoaderOption {
	return func(l *FileLoader) { l.resolver = r }
}

// WithReadFile overrides how the store file is read.
func WithReadFile(fn func(string) ([]byte, error)) FileLoaderOption {
	return func(l *FileLoader) { l.readFile = fn }
}

// NewFileLoader creates a loader for the configured store file.
func NewFileLoader(cfg StoreConfig, opts ...FileLoaderOption) *FileLoader {
	l := &FileLoader{
		config:   cfg,
		resolver: secrets.DefaultResolver,
		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the store configuration.
func (l *FileLoader) Config() StoreConfig {
	return l.config
}

// Load reads and decodes the store file.
func (l *FileLoader) Load() (*Bundle, error) {
	ctx := context.Background()

	storeType, err := ParseStoreType(string(l.config.Type))
	if err != nil {
		return nil, err
	}

	password, err := l.resolver.Resolve(ctx, l.config.PasswordRef())
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", l.config.Path, err)
	}

	keyPassword, err := l.resolver.Resolve(ctx, l.config.KeyPasswordRef())
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", l.config.Path, err)
	}
	if keyPassword == "" {
		keyPassword = password
	}

	data, err := l.readFile(l.config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read store %s: %w", l.config.Path, err)
	}

	b, err := Decode(data, storeType, password, keyPassword)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", l.config.Path, err)
	}
	return b, nil
}

// Decode parses store data of the given type.
//
// PKCS#12 archives carry a single password for the archive and its key bags,
// so keyPassword is only recorded on the bundle for them.
func Decode(data []byte, t StoreType, password, keyPassword string) (*Bundle, error) {
	switch t {
	case TypePKCS12, "":
		return decodePKCS12(data, password, keyPassword)
	case TypePEM:
		return decodePEM(data, keyPassword)
	default:
		return nil, fmt.Errorf("unsupported store type %q", t)
	}
}

func decodePKCS12(data []byte, password, keyPassword string) (*Bundle, error) {
	key, leaf, caCerts, err := pkcs12.DecodeChain(data, password)
	if err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", key)
		}
		chain := append([]*x509.Certificate{leaf}, caCerts...)
		return NewBundle([]KeyEntry{{Alias: DefaultKeyAlias, PrivateKey: signer, Chain: chain}}, nil, keyPassword)
	}
	if errors.Is(err, pkcs12.ErrIncorrectPassword) {
		return nil, fmt.Errorf("failed to decode PKCS12: %w", err)
	}

	certs, trustErr := pkcs12.DecodeTrustStore(data, password)
	if trustErr != nil {
		return nil, fmt.Errorf("failed to decode PKCS12 as key store (%v) or trust store: %w", err, trustErr)
	}

	b, err := NewTrustBundle(certs...)
	if err != nil {
		return nil, err
	}
	b.keyPassword = keyPassword
	return b, nil
}

func decodePEM(data []byte, keyPassword string) (*Bundle, error) {
	var (
		certs []*x509.Certificate
		key   crypto.Signer
	)

	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}

		switch block.Type {
		case "CERTIFICATE":
			c, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse certificate: %w", err)
			}
			certs = append(certs, c)

		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			if key != nil {
				return nil, fmt.Errorf("PEM store contains more than one private key")
			}
			if strings.Contains(block.Headers["Proc-Type"], "ENCRYPTED") {
				return nil, fmt.Errorf("encrypted PEM private keys are not supported, use a PKCS12 store")
			}
			k, err := parsePrivateKey(block)
			if err != nil {
				return nil, err
			}
			key = k

		case "ENCRYPTED PRIVATE KEY":
			return nil, fmt.Errorf("encrypted PEM private keys are not supported, use a PKCS12 store")
		}
	}

	if key == nil {
		if len(certs) == 0 {
			return nil, fmt.Errorf("no PEM certificates found")
		}
		return NewTrustBundle(certs...)
	}

	if len(certs) == 0 {
		return nil, fmt.Errorf("PEM private key has no certificate")
	}

	// Move the certificate matching the key to the front of the chain.
	leafIdx := -1
	for i, c := range certs {
		if publicKeysEqual(key.Public(), c.PublicKey) {
			leafIdx = i
			break
		}
	}
	if leafIdx < 0 {
		return nil, fmt.Errorf("no certificate matches the PEM private key")
	}
	chain := make([]*x509.Certificate, 0, len(certs))
	chain = append(chain, certs[leafIdx])
	chain = append(chain, certs[:leafIdx]...)
	chain = append(chain, certs[leafIdx+1:]...)

	return NewBundle([]KeyEntry{{Alias: DefaultKeyAlias, PrivateKey: key, Chain: chain}}, nil, keyPassword)
}

func parsePrivateKey(block *pem.Block) (crypto.Signer, error) {
	var (
		parsed any
		err    error
	)
	switch block.Type {
	case "RSA PRIVATE KEY":
		parsed, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		parsed, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		parsed, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	signer, ok := parsed.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", parsed)
	}
	return signer, nil
}

// Encode serializes a bundle. A PKCS#12 archive holds either exactly one key
// entry or only trusted certificates. PEM output lists each key entry's chain
// and key, then the trusted certificates.
func Encode(b *Bundle, t StoreType, password string) ([]byte, error) {
	switch t {
	case TypePKCS12, "":
		return encodePKCS12(b, password)
	case TypePEM:
		return encodePEM(b)
	default:
		return nil, fmt.Errorf("unsupported store type %q", t)
	}
}

func encodePKCS12(b *Bundle, password string) ([]byte, error) {
	keys := b.KeyEntries()
	trusted := b.TrustedCertificates()

	switch {
	case len(keys) > 1:
		return nil, fmt.Errorf("PKCS12 encoding supports a single key entry, bundle has %d", len(keys))
	case len(keys) == 1 && len(trusted) > 0:
		return nil, fmt.Errorf("PKCS12 encoding cannot mix a key entry with trusted certificates")
	case len(keys) == 1:
		k := keys[0]
		data, err := pkcs12.Modern.Encode(k.PrivateKey, k.Chain[0], k.Chain[1:], password)
		if err != nil {
			return nil, fmt.Errorf("failed to encode PKCS12 key store: %w", err)
		}
		return data, nil
	default:
		data, err := pkcs12.Modern.EncodeTrustStore(trusted, password)
		if err != nil {
			return nil, fmt.Errorf("failed to encode PKCS12 trust store: %w", err)
		}
		return data, nil
	}
}

func encodePEM(b *Bundle) ([]byte, error) {
	var out []byte
	for _, k := range b.KeyEntries() {
		for _, c := range k.Chain {
			out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})...)
		}
		der, err := x509.MarshalPKCS8PrivateKey(k.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal private key %q: %w", k.Alias, err)
		}
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})...)
	}
	for _, c := range b.TrustedCertificates() {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})...)
	}
	return out, nil
}

// WriteFile encodes a bundle and writes it with owner-only permissions.
func WriteFile(path string, b *Bundle, t StoreType, password string) error {
	data, err := Encode(b, t, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write store %s: %w", path, err)
	}
	return nil
}
