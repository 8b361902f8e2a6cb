package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

// KeyStoreCheck reports a key store as unhealthy until its first successful
// load, and when requireKey is set and the served bundle holds no private key
// entry or its leaf certificate has expired.
//
// The check calls Get, so an overdue store is reloaded as a side effect.
func KeyStoreCheck(m *keystore.Manager, requireKey bool, now func() time.Time) CheckFunc {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) error {
		b := m.Get()
		if _, ok := m.LoadedAt(); !ok && b.IsEmpty() {
			return fmt.Errorf("key store %q has not been loaded", m.Name())
		}
		if !requireKey {
			return nil
		}

		entries := b.KeyEntries()
		if len(entries) == 0 {
			return fmt.Errorf("key store %q has no private key entry", m.Name())
		}
		leaf := entries[0].Leaf()
		if leaf != nil && now().After(leaf.NotAfter) {
			return fmt.Errorf("key store %q: certificate %q expired at %s",
				m.Name(), entries[0].Alias, leaf.NotAfter.Format(time.RFC3339))
		}
		return nil
	}
}

// ErrNotServing is returned by ServingCheck while a component is not serving.
var ErrNotServing = errors.New("not serving")

// ServingCheck adapts a readiness predicate, such as a channel's listener
// state, into a CheckFunc.
func ServingCheck(serving func() bool) CheckFunc {
	return func(ctx context.Context) error {
		if !serving() {
			return ErrNotServing
		}
		return nil
	}
}
