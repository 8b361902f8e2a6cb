package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanConnection  = "relay.connection"
	SpanStagePrefix = "relay.stage."
)

// Attribute keys. Network attributes follow OpenTelemetry semantic
// conventions, relay specific ones use the "tlsrelay.*" namespace.
const (
	AttrConnectionID = "tlsrelay.connection_id"
	AttrChannel      = "tlsrelay.channel"
	AttrStage        = "tlsrelay.stage"
	AttrOutcome      = "tlsrelay.outcome"

	AttrPeerSubject = "tlsrelay.peer.subject"
	AttrPeerSerial  = "tlsrelay.peer.serial"
	AttrIssued      = "tlsrelay.certificate.issued"

	AttrTLSVersion = "tls.protocol.version"
	AttrTLSCipher  = "tls.cipher"

	AttrRemoteAddress = "client.address"
	AttrServerAddress = "server.address"

	AttrBytesUpstream   = "tlsrelay.bytes.upstream_to_downstream"
	AttrBytesDownstream = "tlsrelay.bytes.downstream_to_upstream"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// SetErrorAttributes records err on the span and marks it failed.
//
// Example:
//
//	SetErrorAttributes(span, err, "upstream_tls_failed")
func SetErrorAttributes(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}

	span.SetAttributes(
		attribute.String(AttrErrorType, errorType),
		attribute.String(AttrErrorMessage, err.Error()),
	)

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent adds a named event to the span with optional attributes.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// AttributeBuilder provides a fluent interface for building span attributes.
type AttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewAttributeBuilder creates a new attribute builder.
func NewAttributeBuilder() *AttributeBuilder {
	return &AttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 8),
	}
}

// WithConnection adds the connection id and channel.
func (ab *AttributeBuilder) WithConnection(connectionID, channel string) *AttributeBuilder {
	ab.attrs = append(ab.attrs,
		attribute.String(AttrConnectionID, connectionID),
		attribute.String(AttrChannel, channel),
	)
	return ab
}

// WithRemote adds the upstream client address.
func (ab *AttributeBuilder) WithRemote(addr string) *AttributeBuilder {
	if addr != "" {
		ab.attrs = append(ab.attrs, attribute.String(AttrRemoteAddress, addr))
	}
	return ab
}

// WithServer adds the downstream address.
func (ab *AttributeBuilder) WithServer(addr string) *AttributeBuilder {
	if addr != "" {
		ab.attrs = append(ab.attrs, attribute.String(AttrServerAddress, addr))
	}
	return ab
}

// WithPeer adds the verified peer certificate identity.
func (ab *AttributeBuilder) WithPeer(subject, serial string) *AttributeBuilder {
	if subject != "" {
		ab.attrs = append(ab.attrs,
			attribute.String(AttrPeerSubject, subject),
			attribute.String(AttrPeerSerial, serial),
		)
	}
	return ab
}

// WithTLS adds the negotiated protocol version and cipher suite.
func (ab *AttributeBuilder) WithTLS(version, cipher string) *AttributeBuilder {
	ab.attrs = append(ab.attrs,
		attribute.String(AttrTLSVersion, version),
		attribute.String(AttrTLSCipher, cipher),
	)
	return ab
}

// WithBytes adds relayed byte counts.
func (ab *AttributeBuilder) WithBytes(upstreamToDownstream, downstreamToUpstream int64) *AttributeBuilder {
	ab.attrs = append(ab.attrs,
		attribute.Int64(AttrBytesUpstream, upstreamToDownstream),
		attribute.Int64(AttrBytesDownstream, downstreamToUpstream),
	)
	return ab
}

// WithCustom adds a custom string attribute.
func (ab *AttributeBuilder) WithCustom(key, value string) *AttributeBuilder {
	ab.attrs = append(ab.attrs, attribute.String(key, value))
	return ab
}

// Build returns the built attributes as a trace.SpanStartOption.
func (ab *AttributeBuilder) Build() trace.SpanStartEventOption {
	return trace.WithAttributes(ab.attrs...)
}

// Apply applies the attributes to a span.
func (ab *AttributeBuilder) Apply(span trace.Span) {
	span.SetAttributes(ab.attrs...)
}

// Attributes returns the raw attribute slice.
func (ab *AttributeBuilder) Attributes() []attribute.KeyValue {
	return ab.attrs
}
