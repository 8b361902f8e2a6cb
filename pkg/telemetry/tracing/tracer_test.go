package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/tlsrelay/pkg/config"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()

	exp := tracetest.NewInMemoryExporter()
	tracer, err := New(&config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerAlways,
		ServiceName: "tlsrelay-test",
	}, WithExporter(exp))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })
	return tracer, exp
}

// TestNew tests the creation of a new tracer
func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *config.TracingConfig
		wantErr bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name: "disabled tracing",
			config: &config.TracingConfig{
				Enabled:     false,
				ServiceName: "test-service",
			},
		},
		{
			name: "enabled with none exporter",
			config: &config.TracingConfig{
				Enabled:     true,
				Sampler:     "always",
				Exporter:    "none",
				ServiceName: "test-service",
			},
		},
		{
			name: "enabled with lazy otlp exporter",
			config: &config.TracingConfig{
				Enabled:     true,
				Sampler:     "ratio",
				SampleRatio: 0.5,
				Exporter:    "otlp",
				Endpoint:    "localhost:4317",
				ServiceName: "test-service",
				OTLP: config.OTLPConfig{
					Insecure: true,
					Timeout:  time.Second,
				},
			},
		},
		{
			name: "invalid sampler",
			config: &config.TracingConfig{
				Enabled:     true,
				Sampler:     "invalid",
				Exporter:    "none",
				ServiceName: "test-service",
			},
			wantErr: true,
		},
		{
			name: "unsupported exporter",
			config: &config.TracingConfig{
				Enabled:     true,
				Sampler:     "always",
				Exporter:    "zipkin",
				ServiceName: "test-service",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}

			if tracer.Enabled() != tt.config.Enabled {
				t.Errorf("tracer.Enabled() = %v, want %v", tracer.Enabled(), tt.config.Enabled)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			// Shutdown against an absent collector may time out; only
			// the disabled and none paths are expected to be clean.
			err = tracer.Shutdown(ctx)
			if tt.config.Exporter != "otlp" && err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer

	if tracer.Enabled() {
		t.Error("nil tracer reports enabled")
	}
	ctx, span := tracer.StartConnection(context.Background(), "c", "id", "127.0.0.1:1")
	if ctx == nil || span == nil {
		t.Fatal("nil tracer returned nil context or span")
	}
	span.End()
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if TraceID(ctx) != "" {
		t.Errorf("TraceID() = %q, want empty for noop span", TraceID(ctx))
	}
}

func TestTracer_ConnectionAndStages(t *testing.T) {
	tracer, exp := newRecordingTracer(t)

	ctx, root := tracer.StartConnection(context.Background(), "orders", "conn-1", "10.0.0.7:5555")
	if TraceID(ctx) == "" {
		t.Fatal("TraceID() empty inside recording span")
	}

	_, stage := tracer.StartStage(ctx, "upstream_tls")
	SetStatus(stage, nil)
	stage.End()

	_, failed := tracer.StartStage(ctx, "dial")
	SetErrorAttributes(failed, errors.New("connection refused"), "downstream_failed")
	failed.End()

	NewAttributeBuilder().WithPeer("CN=alice", "42").WithBytes(10, 20).Apply(root)
	root.End()

	spans := exp.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("exported %d spans, want 3", len(spans))
	}

	byName := make(map[string]tracetest.SpanStub)
	for _, s := range spans {
		byName[s.Name] = s
	}

	rootStub, ok := byName[SpanConnection]
	if !ok {
		t.Fatalf("missing %s span", SpanConnection)
	}
	wantAttrs := map[attribute.Key]string{
		AttrChannel:       "orders",
		AttrConnectionID:  "conn-1",
		AttrRemoteAddress: "10.0.0.7:5555",
		AttrPeerSubject:   "CN=alice",
	}
	got := make(map[attribute.Key]string)
	for _, kv := range rootStub.Attributes {
		got[kv.Key] = kv.Value.Emit()
	}
	for k, v := range wantAttrs {
		if got[k] != v {
			t.Errorf("root attribute %s = %q, want %q", k, got[k], v)
		}
	}

	tlsStub := byName[SpanStagePrefix+"upstream_tls"]
	if tlsStub.Parent.SpanID() != rootStub.SpanContext.SpanID() {
		t.Error("stage span is not a child of the connection span")
	}
	if tlsStub.Status.Code != codes.Ok {
		t.Errorf("upstream_tls status = %v, want Ok", tlsStub.Status.Code)
	}

	dialStub := byName[SpanStagePrefix+"dial"]
	if dialStub.Status.Code != codes.Error {
		t.Errorf("dial status = %v, want Error", dialStub.Status.Code)
	}
	if len(dialStub.Events) == 0 {
		t.Error("dial span has no recorded error event")
	}
}

func TestTracer_NeverSampler(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tracer, err := New(&config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerNever,
		ServiceName: "tlsrelay-test",
	}, WithExporter(exp))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer tracer.Shutdown(context.Background())

	_, span := tracer.StartConnection(context.Background(), "c", "id", "")
	span.End()

	if n := len(exp.GetSpans()); n != 0 {
		t.Errorf("exported %d spans with never sampler, want 0", n)
	}
}

func TestAttributeBuilder(t *testing.T) {
	attrs := NewAttributeBuilder().
		WithConnection("id", "ch").
		WithRemote("").
		WithServer("db:5432").
		WithPeer("", "").
		WithTLS("TLS 1.3", "TLS_AES_128_GCM_SHA256").
		WithCustom("k", "v").
		Attributes()

	// empty remote and peer are skipped
	if len(attrs) != 6 {
		t.Errorf("len(attrs) = %d, want 6", len(attrs))
	}
}
