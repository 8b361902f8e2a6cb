// Package monitor watches the certificates held by key and trust stores and
// reports how long each has left before it expires.
//
// An ExpiryMonitor is registered with the managers it should inspect and
// runs on a cron schedule. Every check publishes a
// certificate_expiry_seconds gauge per store and alias and logs a warning
// for certificates inside the warning window:
//
//	m := monitor.NewExpiryMonitor(&cfg.Telemetry.ExpiryCheck, collector)
//	m.Watch("upstream.key_store", keyManager)
//	if err := m.Start(ctx); err != nil {
//		return err
//	}
//	defer m.Stop()
package monitor
