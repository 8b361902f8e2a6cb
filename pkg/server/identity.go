package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/tlsrelay/pkg/config"
	"mercator-hq/tlsrelay/pkg/issuance"
	"mercator-hq/tlsrelay/pkg/proxy"
	"mercator-hq/tlsrelay/pkg/security/ca"
	"mercator-hq/tlsrelay/pkg/security/keystore"
)

// buildIdentity selects the downstream client certificate source: an
// issuing CA when issuance is enabled, the configured downstream key store
// otherwise, or none.
func (a *Application) buildIdentity() (proxy.ClientIdentitySource, error) {
	cfg := a.cfg

	if !cfg.Issuance.Enabled {
		if cfg.DownstreamTLS.KeyStore.IsZero() {
			return nil, nil
		}
		m, err := a.newStore(StoreDownstreamKey, cfg.DownstreamTLS.KeyStore, true)
		if err != nil {
			return nil, err
		}
		return ca.NewStaticSource(m), nil
	}

	authority, err := a.buildAuthority(&cfg.Issuance)
	if err != nil {
		return nil, err
	}

	mapping, err := ca.ParseIdentityMapping(cfg.Issuance.IdentityMapping)
	if err != nil {
		return nil, err
	}
	alg, err := ca.ParseSignatureAlgorithm(cfg.Issuance.SignatureAlgorithm)
	if err != nil {
		return nil, err
	}

	opts := []ca.IssuerOption{
		ca.WithIssuerLogger(a.logger.With("component", "issuer")),
		ca.WithIssueHook(a.metrics.RecordIssuance),
	}

	ledger, err := openLedger(&cfg.Issuance.Ledger)
	if err != nil {
		return nil, err
	}
	if ledger != nil {
		a.ledger = ledger
		a.pruner = issuance.NewPruner(ledger, &issuance.RetentionConfig{
			Retention:     cfg.Issuance.Ledger.Retention,
			PruneSchedule: pruneSchedule(&cfg.Issuance.Ledger),
		})
		opts = append(opts, ca.WithLedger(ledger))
	}

	return ca.NewIssuer(authority, ca.IssuerConfig{
		Validity:           cfg.Issuance.Validity,
		Backdate:           cfg.Issuance.Backdate,
		SignatureAlgorithm: alg,
		Mapping:            mapping,
	}, opts...), nil
}

// buildAuthority loads the CA store, or generates a CA in memory for the
// configured issuer DN.
func (a *Application) buildAuthority(cfg *config.IssuanceConfig) (*ca.CertificateAuthority, error) {
	if !cfg.CA.KeyStore.IsZero() {
		m, err := a.newStore(StoreCA, cfg.CA.KeyStore, true)
		if err != nil {
			return nil, err
		}
		if _, ok := m.Get().KeyEntry(cfg.CA.KeyAlias); !ok {
			return nil, fmt.Errorf("%s has no key entry %q", StoreCA, cfg.CA.KeyAlias)
		}
		return ca.New(m, cfg.CA.KeyAlias, ca.WithKeyBits(cfg.KeyBits)), nil
	}

	subject, err := ca.ParseDN(cfg.CA.Generate.IssuerDN)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer DN: %w", err)
	}
	now := time.Now()
	b, err := ca.GenerateAuthority(ca.GenerateOptions{
		Subject:   subject,
		NotBefore: now.Add(-cfg.Backdate),
		NotAfter:  now.Add(cfg.CA.Generate.Validity),
		KeyBits:   cfg.KeyBits,
		Alias:     cfg.CA.KeyAlias,
	})
	if err != nil {
		return nil, err
	}

	// The generated material never changes, so one load lasts its lifetime.
	m := keystore.NewManager(keystore.StaticLoader(b), cfg.CA.Generate.Validity,
		keystore.WithName(StoreCA),
		keystore.WithLogger(a.logger.With("component", "keystore", "store", StoreCA)),
	)
	if err := m.Reload(); err != nil {
		return nil, err
	}
	a.addGeneratedStore(StoreCA, m)

	a.logger.Info("generated in-memory CA",
		"subject", subject.String(),
		"not_after", now.Add(cfg.CA.Generate.Validity),
	)
	return ca.New(m, cfg.CA.KeyAlias, ca.WithKeyBits(cfg.KeyBits)), nil
}

// openLedger opens the configured issuance ledger. The "none" backend
// returns a nil store.
func openLedger(cfg *config.LedgerConfig) (issuance.Store, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "", "memory":
		return issuance.NewMemoryStore(), nil
	case issuance.DriverModernc, issuance.DriverMattn:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create ledger directory: %w", err)
			}
		}
		sqliteCfg := issuance.DefaultSQLiteConfig()
		sqliteCfg.Path = cfg.Path
		sqliteCfg.Driver = cfg.Backend
		return issuance.NewSQLiteStore(sqliteCfg)
	default:
		return nil, fmt.Errorf("unsupported ledger backend %q", cfg.Backend)
	}
}

func pruneSchedule(cfg *config.LedgerConfig) string {
	if cfg.Retention <= 0 {
		return ""
	}
	return cfg.PruneSchedule
}
