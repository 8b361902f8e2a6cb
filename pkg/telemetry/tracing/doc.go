// Package tracing provides OpenTelemetry tracing for relayed connections.
//
// # Overview
//
// Every accepted connection gets a root span ("relay.connection") and one
// child span per pipeline stage ("relay.stage.upstream_tls",
// "relay.stage.dial", ...). The trace id is attached to the connection's
// log lines so a failed handshake can be followed from logs to traces.
//
// Spans are exported over OTLP/gRPC. The "none" exporter keeps span and
// trace ids for log correlation without sending anything.
//
// # Sampling Strategies
//
// Three sampling strategies are supported:
//   - always: Sample all connections (development)
//   - never: Sample no connections
//   - ratio: Sample a percentage of connections (production)
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.StartConnection(ctx, "orders", connID, conn.RemoteAddr().String())
//	defer span.End()
//
//	ctx, stage := tracer.StartStage(ctx, "upstream_tls")
//	err := handshake(ctx)
//	tracing.SetStatus(stage, err)
//	stage.End()
//
// A nil *Tracer is valid and produces noop spans, so components can be
// constructed without tracing in tests.
package tracing
