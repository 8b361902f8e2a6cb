// Package metrics provides Prometheus metrics collection for tlsrelay.
//
// # Metrics Categories
//
//   - Connection Metrics: accepted, active and closed connections, relayed
//     bytes, connection lifetime and failed handshakes
//   - Material Metrics: key store reloads, issued client certificates and
//     the remaining lifetime of stored certificates
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	collector.ConnectionOpened("billing")
//	collector.RecordBytes("billing", "upstream_to_downstream", 512)
//	collector.ConnectionClosed("billing", "ok", 3*time.Second)
//
//	manager := keystore.NewManager(loader, time.Minute,
//		keystore.WithReloadHook(collector.RecordReload))
//
// # Prometheus Endpoint
//
// All metrics are exposed by Handler in the Prometheus exposition format:
//
//	# HELP tlsrelay_connections_total Total number of closed connections by outcome
//	# TYPE tlsrelay_connections_total counter
//	tlsrelay_connections_total{channel="billing",outcome="ok"} 1234
//
// Label values come from configuration (channel and store names) or from a
// small fixed set (outcome, leg, direction, result), so cardinality is
// bounded without a limiter.
package metrics
