package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"mercator-hq/tlsrelay/pkg/security/keystore"
	tlsutil "mercator-hq/tlsrelay/pkg/security/tls"
	"mercator-hq/tlsrelay/pkg/telemetry/logging"
	"mercator-hq/tlsrelay/pkg/telemetry/tracing"
)

// Stage names.
const (
	StageUpstreamTLS         = "upstream_tls"
	StageCaptureIdentity     = "capture_identity"
	StageResolveClientBundle = "resolve_client_bundle"
	StageDial                = "dial"
	StageDownstreamTLS       = "downstream_tls"
	StageRelay               = "relay"
)

// Legs of a connection, used in logs and handshake failure metrics.
const (
	LegUpstream   = "upstream"
	LegDownstream = "downstream"
)

// Dialer opens downstream connections. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// UpstreamTLSStage terminates TLS on the accepted connection with material
// resolved from builder at handshake time.
func UpstreamTLSStage(builder *tlsutil.ServerBuilder, timeout time.Duration) Stage {
	return Stage{
		Name:    StageUpstreamTLS,
		State:   StateUpstreamTLSEstablishing,
		Outcome: OutcomeUpstreamTLSFailed,
		Run: func(ctx context.Context, s *Session) error {
			ctx = logging.WithLeg(ctx, LegUpstream)
			conn := tls.Server(s.Upstream, builder.Config())

			hctx, cancel := withTimeout(ctx, timeout)
			defer cancel()
			if err := conn.HandshakeContext(hctx); err != nil {
				s.Logger.WarnContext(ctx, "upstream TLS failed",
					"remote", s.Upstream.RemoteAddr().String(),
					"error", err,
				)
				return fmt.Errorf("upstream handshake: %w", err)
			}

			s.Upstream = conn
			cs := conn.ConnectionState()
			s.UpstreamTLS = &cs
			s.Logger.InfoContext(ctx, "upstream TLS established", tlsutil.DescribeConnection(cs).LogAttrs()...)
			return nil
		},
	}
}

// CaptureIdentityStage records the verified upstream peer certificate.
func CaptureIdentityStage() Stage {
	return Stage{
		Name:    StageCaptureIdentity,
		State:   StateUpstreamReady,
		Outcome: OutcomeUpstreamTLSFailed,
		Run: func(ctx context.Context, s *Session) error {
			if s.UpstreamTLS == nil {
				return nil
			}
			s.Peer = tlsutil.PeerCertificate(*s.UpstreamTLS)
			if s.Peer != nil {
				info := tlsutil.DescribeConnection(*s.UpstreamTLS)
				tracing.NewAttributeBuilder().
					WithPeer(info.PeerSubject, info.PeerSerial).
					Apply(tracing.SpanFromContext(ctx))
			}
			return nil
		},
	}
}

// ResolveClientBundleStage asks source for the downstream client material.
// A nil source presents no client certificate.
func ResolveClientBundleStage(source ClientIdentitySource) Stage {
	return Stage{
		Name:    StageResolveClientBundle,
		State:   StateUpstreamReady,
		Outcome: OutcomeIssuanceFailed,
		Run: func(ctx context.Context, s *Session) error {
			if source == nil {
				s.ClientBundle = keystore.EmptyBundle()
				return nil
			}
			b, err := source.ClientBundle(ctx, s.Peer)
			if err != nil {
				s.Logger.WarnContext(ctx, "client certificate unavailable", "error", err)
				return fmt.Errorf("resolve client certificate: %w", err)
			}
			s.ClientBundle = b
			return nil
		},
	}
}

// DialStage connects to the downstream endpoint.
func DialStage(dialer Dialer, target Endpoint, timeout time.Duration) Stage {
	addr := target.String()
	return Stage{
		Name:    StageDial,
		State:   StateDownstreamConnecting,
		Outcome: OutcomeDownstreamFailed,
		Run: func(ctx context.Context, s *Session) error {
			ctx = logging.WithLeg(ctx, LegDownstream)
			dctx, cancel := withTimeout(ctx, timeout)
			defer cancel()

			conn, err := dialer.DialContext(dctx, "tcp", addr)
			if err != nil {
				s.Logger.WarnContext(ctx, "downstream failed", "downstream", addr, "error", err)
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			if err := s.track(conn); err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			s.Downstream = conn
			tracing.NewAttributeBuilder().WithServer(addr).Apply(tracing.SpanFromContext(ctx))
			s.Logger.InfoContext(ctx, "downstream connected",
				"downstream", addr,
				"local", conn.LocalAddr().String(),
			)
			return nil
		},
	}
}

// DownstreamTLSStage originates TLS towards serverName, presenting the
// session's client bundle.
func DownstreamTLSStage(builder *tlsutil.ClientBuilder, serverName string, timeout time.Duration) Stage {
	return Stage{
		Name:    StageDownstreamTLS,
		State:   StateDownstreamTLSEstablishing,
		Outcome: OutcomeDownstreamTLSFailed,
		Run: func(ctx context.Context, s *Session) error {
			ctx = logging.WithLeg(ctx, LegDownstream)
			conn := tls.Client(s.Downstream, builder.Config(serverName, s.ClientBundle))

			hctx, cancel := withTimeout(ctx, timeout)
			defer cancel()
			if err := conn.HandshakeContext(hctx); err != nil {
				attrs := []any{"server_name", serverName, "error", err}
				var mismatch *tlsutil.HostnameMismatchError
				if errors.As(err, &mismatch) {
					attrs = append(attrs, "hostname_mismatch", true)
				}
				s.Logger.WarnContext(ctx, "downstream TLS failed", attrs...)
				return fmt.Errorf("downstream handshake: %w", err)
			}

			s.Downstream = conn
			cs := conn.ConnectionState()
			s.DownstreamTLS = &cs
			s.Logger.InfoContext(ctx, "downstream TLS established", tlsutil.DescribeConnection(cs).LogAttrs()...)
			return nil
		},
	}
}
