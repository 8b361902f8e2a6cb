package ca

import (
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/tlsrelay/pkg/issuance"
	"mercator-hq/tlsrelay/pkg/security/keystore"
	"mercator-hq/tlsrelay/pkg/telemetry/logging"
)

// ErrNoPeerIdentity is returned when a client certificate must be minted but
// the upstream peer did not present a verified certificate.
var ErrNoPeerIdentity = errors.New("upstream peer presented no certificate")

// IdentityMapping selects how the upstream peer's subject becomes the subject
// of the minted certificate.
type IdentityMapping string

const (
	// MappingSubject copies the full subject, attribute for attribute.
	MappingSubject IdentityMapping = "subject"

	// MappingCommonName keeps only the common name.
	MappingCommonName IdentityMapping = "common_name"
)

// ParseIdentityMapping parses a mapping name. Empty selects MappingSubject.
func ParseIdentityMapping(s string) (IdentityMapping, error) {
	switch IdentityMapping(s) {
	case "", MappingSubject:
		return MappingSubject, nil
	case MappingCommonName:
		return MappingCommonName, nil
	default:
		return "", fmt.Errorf("unknown identity mapping %q (expected subject or common_name)", s)
	}
}

// Map derives the minted subject from the peer subject.
func (m IdentityMapping) Map(peer pkix.Name) pkix.Name {
	if m == MappingCommonName {
		return CommonNameOnly(peer)
	}
	return CloneSubject(peer)
}

const (
	// DefaultValidity is the lifetime of minted client certificates.
	DefaultValidity = 24 * time.Hour

	// DefaultBackdate shifts NotBefore into the past to absorb clock skew
	// between relay and downstream server.
	DefaultBackdate = time.Minute
)

// IssuerConfig controls client certificate minting.
type IssuerConfig struct {
	// Validity is the lifetime of a minted certificate. Default: 24h
	Validity time.Duration

	// Backdate is subtracted from the issuance time to get NotBefore.
	// Zero selects DefaultBackdate, a negative value disables backdating.
	Backdate time.Duration

	SignatureAlgorithm x509.SignatureAlgorithm
	Mapping            IdentityMapping
}

// Issuer mints a downstream client certificate for every upstream peer.
type Issuer struct {
	authority *CertificateAuthority
	config    IssuerConfig
	ledger    issuance.Store
	clock     func() time.Time
	logger    *slog.Logger
	hooks     []func(err error)
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithLedger records every issued certificate in store.
func WithLedger(store issuance.Store) IssuerOption {
	return func(i *Issuer) { i.ledger = store }
}

// WithIssuerClock replaces time.Now.
func WithIssuerClock(clock func() time.Time) IssuerOption {
	return func(i *Issuer) { i.clock = clock }
}

// WithIssuerLogger sets the logger.
func WithIssuerLogger(logger *slog.Logger) IssuerOption {
	return func(i *Issuer) { i.logger = logger }
}

// WithIssueHook registers a hook called after every issuance attempt.
func WithIssueHook(hook func(err error)) IssuerOption {
	return func(i *Issuer) { i.hooks = append(i.hooks, hook) }
}

// NewIssuer creates an issuer signing with authority.
func NewIssuer(authority *CertificateAuthority, config IssuerConfig, opts ...IssuerOption) *Issuer {
	if config.Validity <= 0 {
		config.Validity = DefaultValidity
	}
	if config.Backdate < 0 {
		config.Backdate = 0
	} else if config.Backdate == 0 {
		config.Backdate = DefaultBackdate
	}
	if config.Mapping == "" {
		config.Mapping = MappingSubject
	}

	i := &Issuer{
		authority: authority,
		config:    config,
		clock:     time.Now,
		logger:    slog.Default().With("component", "ca.issuer"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ClientBundle mints a client certificate for the verified upstream peer.
func (i *Issuer) ClientBundle(ctx context.Context, peer *x509.Certificate) (*keystore.Bundle, error) {
	if peer == nil {
		i.notify(ErrNoPeerIdentity)
		return nil, ErrNoPeerIdentity
	}

	now := i.clock()
	subject := i.config.Mapping.Map(peer.Subject)

	b, err := i.authority.IssueCertificate(subject,
		now.Add(-i.config.Backdate),
		now.Add(i.config.Validity),
		i.config.SignatureAlgorithm,
	)
	if err != nil {
		err = fmt.Errorf("failed to issue client certificate for %q: %w", peer.Subject.String(), err)
		i.notify(err)
		return nil, err
	}

	leaf, _ := b.Certificate(LeafAlias)
	i.logger.InfoContext(ctx, "certificate issued",
		"subject", leaf.Subject.String(),
		"serial", leaf.SerialNumber.Text(16),
		"not_after", leaf.NotAfter,
	)

	if i.ledger != nil {
		rec := issuance.NewRecord(leaf, peer, now)
		rec.ConnectionID = logging.GetConnectionID(ctx)
		rec.Channel = logging.GetChannel(ctx)
		if err := i.ledger.Record(ctx, rec); err != nil {
			i.logger.WarnContext(ctx, "failed to record issued certificate", "error", err)
		}
	}

	i.notify(nil)
	return b, nil
}

func (i *Issuer) notify(err error) {
	for _, hook := range i.hooks {
		hook(err)
	}
}
