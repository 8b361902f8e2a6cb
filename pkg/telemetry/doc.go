// Package telemetry groups the observability packages of the relay.
//
// # Components
//
//   - logging: slog handlers with connection correlation and secret redaction
//   - metrics: Prometheus collectors for connections, handshakes and key material
//   - tracing: OpenTelemetry spans per connection and pipeline stage
//   - health: liveness and readiness checks served by the admin endpoint
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
//	collector.ConnectionOpened("main")
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	ctx, span := tracer.StartConnection(ctx, "main", connID, remote)
//	defer span.End()
//
// The metrics collector and the tracer accept nil receivers, so callers
// need no branches when a concern is switched off.
package telemetry
