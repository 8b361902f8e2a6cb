package proxy

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/tlsrelay/pkg/security/keystore"
)

// Session is the state of one relayed connection. It is owned by the
// connection's goroutines; only State may be read from elsewhere.
type Session struct {
	ID      string
	Channel string

	// Upstream starts as the accepted connection and is replaced by the TLS
	// connection once the upstream handshake completes.
	Upstream net.Conn

	// Downstream is set by the dial stage.
	Downstream net.Conn

	UpstreamTLS   *tls.ConnectionState
	DownstreamTLS *tls.ConnectionState

	// Peer is the verified upstream client certificate, if any.
	Peer *x509.Certificate

	// ClientBundle is the material presented downstream.
	ClientBundle *keystore.Bundle

	Logger    *slog.Logger
	StartedAt time.Time

	// Relay byte counts per direction.
	BytesUpstream   int64
	BytesDownstream int64

	state atomic.Int32

	mu     sync.Mutex
	raw    []net.Conn
	closed bool
}

func newSession(id, channel string, conn net.Conn, logger *slog.Logger, now time.Time) *Session {
	s := &Session{
		ID:        id,
		Channel:   channel,
		Upstream:  conn,
		Logger:    logger,
		StartedAt: now,
	}
	s.state.Store(int32(StateAccepted))
	if conn != nil {
		s.raw = append(s.raw, conn)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// track registers a raw connection for teardown. If the session is already
// closing the connection is closed at once and net.ErrClosed is returned.
func (s *Session) track(conn net.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = conn.Close()
		return net.ErrClosed
	}
	s.raw = append(s.raw, conn)
	return nil
}

// closeConns closes every raw connection of the session. It may be called
// from any goroutine and more than once.
func (s *Session) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, c := range s.raw {
		_ = c.Close()
	}
}
