package server

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/tlsrelay/pkg/config"
	"mercator-hq/tlsrelay/pkg/security/ca"
	"mercator-hq/tlsrelay/pkg/security/keystore"
	"mercator-hq/tlsrelay/pkg/telemetry/logging"
)

var loopback = net.ParseIP("127.0.0.1")

type testCA struct {
	bundle    *keystore.Bundle
	cert      *x509.Certificate
	authority *ca.CertificateAuthority
}

func newTestCA(t *testing.T, cn string) *testCA {
	t.Helper()
	b, err := ca.GenerateAuthority(ca.GenerateOptions{Subject: pkix.Name{CommonName: cn}})
	if err != nil {
		t.Fatalf("GenerateAuthority: %v", err)
	}
	cert, _ := b.Certificate(keystore.DefaultKeyAlias)
	return &testCA{
		bundle:    b,
		cert:      cert,
		authority: ca.New(keystore.NewManager(keystore.StaticLoader(b), time.Hour), ""),
	}
}

func (c *testCA) issue(t *testing.T, cn string, opts ...ca.IssueOption) *keystore.Bundle {
	t.Helper()
	now := time.Now()
	b, err := c.authority.IssueCertificate(pkix.Name{CommonName: cn}, now.Add(-time.Minute), now.Add(time.Hour), x509.UnknownSignatureAlgorithm, opts...)
	if err != nil {
		t.Fatalf("IssueCertificate: %v", err)
	}
	return b
}

func (c *testCA) pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(c.cert)
	return pool
}

// writeStore writes b as a PKCS#12 file protected by password and returns
// its store configuration.
func writeStore(t *testing.T, name string, b *keystore.Bundle, password string) keystore.StoreConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".p12")
	if err := keystore.WriteFile(path, b, keystore.TypePKCS12, password); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return keystore.StoreConfig{Path: path, Type: keystore.TypePKCS12, Password: password}
}

func (c *testCA) trustStore(t *testing.T, name string) keystore.StoreConfig {
	t.Helper()
	trust, err := keystore.NewTrustBundle(c.cert)
	if err != nil {
		t.Fatal(err)
	}
	return writeStore(t, name, trust, "changeit")
}

// startEcho runs a TLS (or plaintext, for a nil cfg) echo server and
// reports the client certificate of each connection.
func startEcho(t *testing.T, cfg *tls.Config) (int, <-chan *x509.Certificate) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	peers := make(chan *x509.Certificate, 8)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
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
				peers <- peer
				_, _ = io.Copy(conn, conn)
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, peers
}

// baseConfig returns a defaulted configuration with one channel relaying
// an ephemeral loopback port to downstreamPort.
func baseConfig(downstreamPort int) *config.Config {
	cfg := &config.Config{}
	cfg.Proxy.Channels = []config.ChannelConfig{{
		Name:       "main",
		Upstream:   config.EndpointConfig{Host: "127.0.0.1", Port: 0},
		Downstream: config.EndpointConfig{Host: "127.0.0.1", Port: downstreamPort},
	}}
	cfg.Proxy.ShutdownTimeout = 2 * time.Second
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Telemetry.Admin.ListenAddress = "127.0.0.1:0"
	cfg.Telemetry.ExpiryCheck.Schedule = "@every 1h"
	cfg.Issuance.Ledger.Backend = "memory"
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	app, err := New(cfg, WithLogger(logging.Discard()), WithBuildInfo(BuildInfo{Version: "1.2.3", Commit: "abc", BuildTime: "now"}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return app
}

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
