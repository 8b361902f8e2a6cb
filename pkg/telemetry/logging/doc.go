// Package logging provides structured logging for the relay.
//
// # Overview
//
// The logging package builds a log/slog logger with:
//   - JSON or text output
//   - Connection-scoped fields (connection_id, channel, leg) taken from the
//     context.Context passed to the *Context logging methods
//   - The OpenTelemetry trace and span id of the active span, if any
//   - Redaction of secret-bearing attributes (passwords, private keys)
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//	slog.SetDefault(logger)
//
//	ctx = logging.WithConnectionID(ctx, id)
//	ctx = logging.WithChannel(ctx, "payments")
//	logger.InfoContext(ctx, "connection accepted", "remote_addr", addr)
//
// The last line carries connection_id and channel without the caller
// passing them, so every event of a connection can be correlated.
package logging
