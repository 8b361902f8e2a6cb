package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net"
	"testing"
	"time"

	"mercator-hq/tlsrelay/pkg/security/ca"
	"mercator-hq/tlsrelay/pkg/security/keystore"
)

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

// handshake runs both sides over a loopback TCP connection and returns
// their errors and the server's view of the connection.
func handshake(t *testing.T, serverCfg, clientCfg *tls.Config) (serverErr, clientErr error, state tls.ConnectionState) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	type result struct {
		err   error
		state tls.ConnectionState
	}
	done := make(chan result, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			done <- result{err: err}
			return
		}
		defer raw.Close()
		server := tls.Server(raw, serverCfg)
		err = server.HandshakeContext(context.Background())
		if err == nil {
			// TLS 1.3 clients learn about rejected certificates on first read.
			_, _ = server.Write([]byte{1})
		}
		done <- result{err: err, state: server.ConnectionState()}
	}()

	raw, err := net.DialTimeout("tcp", ln.Addr().String(), 5*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer raw.Close()
	_ = raw.SetDeadline(time.Now().Add(10 * time.Second))

	client := tls.Client(raw, clientCfg)
	clientErr = client.Handshake()
	if clientErr == nil {
		buf := make([]byte, 1)
		_, clientErr = client.Read(buf)
	}

	r := <-done
	return r.err, clientErr, r.state
}
