package proxy

import (
	"context"
	"crypto/x509"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

// ClientIdentitySource resolves the client material presented on the
// downstream leg of one connection. peer is the verified upstream client
// certificate, or nil when the upstream client presented none.
//
// Implementations: ca.StaticSource serves a configured store, ca.Issuer
// mints a certificate bound to the peer identity.
type ClientIdentitySource interface {
	ClientBundle(ctx context.Context, peer *x509.Certificate) (*keystore.Bundle, error)
}
