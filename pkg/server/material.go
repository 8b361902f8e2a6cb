package server

import (
	"fmt"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

// Store names used in logs, metrics and health checks.
const (
	StoreUpstreamKey     = "upstream.key_store"
	StoreUpstreamTrust   = "upstream.trust_store"
	StoreDownstreamKey   = "downstream.key_store"
	StoreDownstreamTrust = "downstream.trust_store"
	StoreCA              = "issuance.ca"
)

// managedStore is a store manager together with the file it was loaded from.
type managedStore struct {
	name     string
	manager  *keystore.Manager
	path     string
	watch    bool
	needsKey bool
}

// newStore builds a manager for a configured store file and loads it once,
// so that a missing or undecodable file fails startup instead of the first
// handshake.
func (a *Application) newStore(name string, cfg keystore.StoreConfig, needsKey bool) (*keystore.Manager, error) {
	m := keystore.NewManager(
		keystore.NewFileLoader(cfg),
		cfg.ReloadInterval,
		keystore.WithName(name),
		keystore.WithLogger(a.logger.With("component", "keystore", "store", name)),
		keystore.WithReloadHook(a.metrics.RecordReload),
	)
	if err := m.Reload(); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}
	if needsKey && len(m.Get().KeyEntries()) == 0 {
		return nil, fmt.Errorf("%s (%s) has no private key entry", name, cfg.Path)
	}

	a.stores = append(a.stores, managedStore{
		name:     name,
		manager:  m,
		path:     cfg.Path,
		watch:    cfg.Watch,
		needsKey: needsKey,
	})
	return m, nil
}

// addGeneratedStore registers an in-memory store that has no backing file.
func (a *Application) addGeneratedStore(name string, m *keystore.Manager) {
	a.stores = append(a.stores, managedStore{name: name, manager: m, needsKey: true})
}

// watchStores registers every store with watch enabled. It returns nil
// when no store asked to be watched.
func (a *Application) watchStores() (*keystore.Watcher, error) {
	var w *keystore.Watcher
	for _, s := range a.stores {
		if !s.watch || s.path == "" {
			continue
		}
		if w == nil {
			var err error
			w, err = keystore.NewWatcher(0, a.logger.With("component", "keystore_watcher"))
			if err != nil {
				return nil, err
			}
		}
		if err := w.Add(s.path, s.manager); err != nil {
			_ = w.Stop()
			return nil, fmt.Errorf("failed to watch %s: %w", s.name, err)
		}
	}
	return w, nil
}

// Store returns the manager registered under name.
func (a *Application) Store(name string) (*keystore.Manager, bool) {
	for _, s := range a.stores {
		if s.name == name {
			return s.manager, true
		}
	}
	return nil, false
}
