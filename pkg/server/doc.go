// Package server assembles a running tlsrelay instance from configuration.
//
// An Application owns every long-lived component: the key and trust store
// managers (with their file watcher), the TLS context builders, the client
// identity source (static store or issuing CA with its ledger), one proxy
// channel per configured endpoint pair, the admin HTTP endpoint and the
// background schedulers for ledger retention and certificate expiry.
//
// # Basic Usage
//
//	cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//	if err != nil {
//	    return err
//	}
//
//	app, err := server.New(cfg, server.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	// Run blocks until ctx is cancelled, then shuts everything down.
//	return app.Run(ctx)
//
// # Shutdown
//
// Shutdown stops accepting on every channel at once, waits for open
// connections until the context expires and force-closes the rest. The
// admin endpoint stays up until the channels are drained so readiness
// probes observe the transition.
package server
