// Package proxy relays TCP connections between an upstream listener and a
// downstream endpoint, terminating and re-originating TLS on the way.
//
// # Architecture
//
// A Channel binds one upstream endpoint to one downstream endpoint. Every
// accepted connection runs a Pipeline of named stages:
//
//   - upstream_tls: TLS handshake with the upstream client (optional)
//   - capture_identity: record the verified client certificate
//   - resolve_client_bundle: static or freshly issued client material
//   - dial: connect to the downstream endpoint
//   - downstream_tls: TLS handshake with the downstream server (optional)
//   - relay: copy bytes both ways until either side closes
//
// The first failing stage ends the connection; its Outcome labels the
// connection in logs and metrics. Failures never affect other connections
// or the listener.
//
// # Relay
//
// Each leg is read by its own goroutine and written by a ConnSink with its
// own writer goroutine and bounded queue. Byte order is preserved per
// direction. Closing either leg closes the other.
//
// Relay directions can be decorated with Filters, created per connection by
// a ContextFactory. Package chunked provides filters that reframe a
// direction into length-driven messages.
//
// # Basic Usage
//
//	ch, err := proxy.NewChannel(proxy.ChannelOptions{
//	    Name:       "orders",
//	    Upstream:   proxy.Endpoint{Host: "0.0.0.0", Port: 8443},
//	    Downstream: proxy.Endpoint{Host: "orders.internal", Port: 443},
//	    ServerTLS:  serverBuilder,
//	    ClientTLS:  clientBuilder,
//	    Identity:   issuer,
//	    Logger:     logger,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := ch.Start(); err != nil {
//	    return err
//	}
//	defer ch.Close()
//
// # Logging
//
// Every connection gets a UUID connection id carried in its context, so each
// log line and span of the connection includes connection_id and channel.
package proxy
