package ca

import (
	"context"
	"crypto/x509"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

// StaticSource hands every downstream connection the same client material,
// regardless of the upstream peer. A nil manager means no client
// certificate is presented.
type StaticSource struct {
	material *keystore.Manager
}

// NewStaticSource creates a source serving the managed store.
func NewStaticSource(material *keystore.Manager) *StaticSource {
	return &StaticSource{material: material}
}

// ClientBundle returns the current managed bundle.
func (s *StaticSource) ClientBundle(ctx context.Context, peer *x509.Certificate) (*keystore.Bundle, error) {
	if s.material == nil {
		return keystore.EmptyBundle(), nil
	}
	return s.material.Get(), nil
}
