// Package health provides the liveness and readiness endpoints served on
// the relay's admin listener.
//
// # Endpoints
//
//   - /health: Liveness probe, 200 while the process runs
//   - /ready: Readiness probe, runs every registered check
//   - /version: Build information
//
// # Checks
//
// Checks are registered by name. A critical check (a channel listener, the
// upstream key store) turns the relay "unhealthy" when it fails, a
// non-critical one (the downstream trust store when no downstream TLS is
// configured for some channels) only "degraded". Both return 503 from /ready.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCritical("keystore/upstream-key",
//	    health.KeyStoreCheck(upstreamKeys, true, nil))
//	checker.RegisterCritical("channel/orders",
//	    health.ServingCheck(channel.Serving))
//
//	mux := http.NewServeMux()
//	health.Register(mux, checker, version, commit, buildTime)
//
// Checks run concurrently and each is bounded by the checker timeout.
package health
