package proxy

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/tlsrelay/pkg/config"
	"mercator-hq/tlsrelay/pkg/security/ca"
	"mercator-hq/tlsrelay/pkg/security/keystore"
	"mercator-hq/tlsrelay/pkg/telemetry/logging"
	"mercator-hq/tlsrelay/pkg/telemetry/metrics"
)

var loopback = net.ParseIP("127.0.0.1")

type testPKI struct {
	authority *ca.CertificateAuthority
	caCert    *x509.Certificate
	trust     *keystore.Manager
}

func newTestPKI(t *testing.T, name string) *testPKI {
	t.Helper()

	b, err := ca.GenerateAuthority(ca.GenerateOptions{Subject: pkix.Name{CommonName: name}})
	if err != nil {
		t.Fatalf("GenerateAuthority: %v", err)
	}
	caCert, _ := b.Certificate(keystore.DefaultKeyAlias)
	authority := ca.New(keystore.NewManager(keystore.StaticLoader(b), time.Hour), "")

	trust, err := authority.TrustStore()
	if err != nil {
		t.Fatal(err)
	}
	return &testPKI{
		authority: authority,
		caCert:    caCert,
		trust:     keystore.NewManager(keystore.StaticLoader(trust), time.Hour),
	}
}

func (p *testPKI) issue(t *testing.T, cn string, opts ...ca.IssueOption) *keystore.Bundle {
	t.Helper()
	now := time.Now()
	b, err := p.authority.IssueCertificate(pkix.Name{CommonName: cn}, now.Add(-time.Minute), now.Add(time.Hour), x509.UnknownSignatureAlgorithm, opts...)
	if err != nil {
		t.Fatalf("IssueCertificate: %v", err)
	}
	return b
}

func (p *testPKI) manager(t *testing.T, cn string, opts ...ca.IssueOption) *keystore.Manager {
	t.Helper()
	return keystore.NewManager(keystore.StaticLoader(p.issue(t, cn, opts...)), time.Hour)
}

func (p *testPKI) pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(p.caCert)
	return pool
}

// echoServer echoes every connection and reports the client certificate
// each connection presented (nil for plaintext or no certificate).
type echoServer struct {
	endpoint Endpoint
	peers    chan *x509.Certificate
}

func startEchoServer(t *testing.T, cfg *tls.Config) *echoServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	s := &echoServer{
		endpoint: Endpoint{Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port},
		peers:    make(chan *x509.Certificate, 16),
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn, cfg)
		}
	}()
	return s
}

func (s *echoServer) serve(conn net.Conn, cfg *tls.Config) {
	defer conn.Close()

	var peer *x509.Certificate
	if cfg != nil {
		tc := tls.Server(conn, cfg)
		if err := tc.Handshake(); err != nil {
			return
		}
		if certs := tc.ConnectionState().PeerCertificates; len(certs) > 0 {
			peer = certs[0]
		}
		conn = tc
	}
	s.peers <- peer
	_, _ = io.Copy(conn, conn)
}

func (s *echoServer) nextPeer(t *testing.T) *x509.Certificate {
	t.Helper()
	select {
	case p := <-s.peers:
		return p
	case <-time.After(10 * time.Second):
		t.Fatal("downstream saw no connection")
		return nil
	}
}

func tlsServerConfig(t *testing.T, b *keystore.Bundle, clientCAs *x509.CertPool) *tls.Config {
	t.Helper()
	cfg := &tls.Config{
		Certificates: b.TLSCertificates(),
		MinVersion:   tls.VersionTLS12,
	}
	if clientCAs != nil {
		cfg.ClientCAs = clientCAs
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg
}

func newTestCollector() (*metrics.Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "tlsrelay"}, reg), reg
}

// startChannel starts a channel on an ephemeral loopback port and returns
// the address to dial.
func startChannel(t *testing.T, opts ChannelOptions) (*Channel, string) {
	t.Helper()

	if opts.Name == "" {
		opts.Name = "test"
	}
	opts.Upstream = Endpoint{Host: "127.0.0.1", Port: 0}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	ch, err := NewChannel(opts)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	if err := ch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })
	return ch, ch.Addr().String()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitForOutcome(t *testing.T, reg *prometheus.Registry, channel, outcome string) {
	t.Helper()
	expected := fmt.Sprintf(`
# HELP tlsrelay_connections_total Total number of closed connections by outcome
# TYPE tlsrelay_connections_total counter
tlsrelay_connections_total{channel=%q,outcome=%q} 1
`, channel, outcome)
	waitFor(t, "outcome "+outcome, func() bool {
		return testutil.GatherAndCompare(reg, strings.NewReader(expected), "tlsrelay_connections_total") == nil
	})
}

// roundTrip writes msg and reads the same number of bytes back.
func roundTrip(t *testing.T, conn net.Conn, msg string) string {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write([]byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(buf)
}

// expectClosed asserts the relay closes conn without relaying data.
func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	_, _ = conn.Write([]byte("hello"))
	buf := make([]byte, 5)
	if _, err := io.ReadFull(conn, buf); err == nil {
		t.Fatalf("relay answered %q on a failed connection", buf)
	}
}
