package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/tlsrelay/pkg/config"
	"mercator-hq/tlsrelay/pkg/issuance"
	"mercator-hq/tlsrelay/pkg/security/ca"
	"mercator-hq/tlsrelay/pkg/security/keystore"
	"mercator-hq/tlsrelay/pkg/telemetry/health"
	"mercator-hq/tlsrelay/pkg/telemetry/logging"
)

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(nil) returned no error")
	}
}

func TestNew_MissingStoreFile(t *testing.T) {
	cfg := baseConfig(9000)
	cfg.UpstreamTLS.Enabled = true
	cfg.UpstreamTLS.KeyStore = keystore.StoreConfig{Path: filepath.Join(t.TempDir(), "missing.p12")}
	config.ApplyDefaults(cfg)

	_, err := New(cfg, WithLogger(logging.Discard()))
	if err == nil || !strings.Contains(err.Error(), StoreUpstreamKey) {
		t.Errorf("New() error = %v, want a load failure naming %s", err, StoreUpstreamKey)
	}
}

func TestApplication_PlaintextRelayAndAdmin(t *testing.T) {
	port, _ := startEcho(t, nil)
	cfg := baseConfig(port)
	cfg.Telemetry.Admin.Enabled = true
	app := newApp(t, cfg)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer app.Shutdown(ctx)

	if err := app.Start(ctx); err == nil {
		t.Error("second Start() returned no error")
	}

	ch, ok := app.Channel("main")
	if !ok {
		t.Fatal("channel main not found")
	}
	conn, err := net.Dial("tcp", ch.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	if got := roundTrip(t, conn, "hello relay"); got != "hello relay" {
		t.Errorf("echo = %q", got)
	}
	conn.Close()

	base := "http://" + app.AdminAddr().String()

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/health", http.StatusOK, `"status":"ok"`},
		{"/ready", http.StatusOK, `"channel.main"`},
		{"/version", http.StatusOK, `"version":"1.2.3"`},
		{"/metrics", http.StatusOK, "tlsrelay_connections_active"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(base + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", resp.StatusCode, tt.wantStatus, body)
			}
			if !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("body does not contain %q:\n%s", tt.wantBody, body)
			}
		})
	}

	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if ch.Serving() {
		t.Error("channel still serving after Shutdown")
	}
	status := app.Health().CheckReadiness(ctx)
	if status.Status != health.StatusUnhealthy {
		t.Errorf("readiness after Shutdown = %q, want unhealthy", status.Status)
	}
	if err := app.Start(ctx); err == nil {
		t.Error("Start() after Shutdown returned no error")
	}
}

// Mutual TLS on both legs with client certificates minted by a CA loaded
// from a PKCS#12 store, recorded in the ledger.
func TestApplication_MutualTLSWithIssuance(t *testing.T) {
	upstreamCA := newTestCA(t, "upstream-ca")
	clientsCA := newTestCA(t, "clients-ca")
	downstreamCA := newTestCA(t, "downstream-ca")
	issuingCA := newTestCA(t, "issuing-ca")

	port, peers := startEcho(t, &tls.Config{
		Certificates: downstreamCA.issue(t, "downstream", ca.WithIPAddresses(loopback)).TLSCertificates(),
		ClientCAs:    issuingCA.pool(),
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	})

	cfg := baseConfig(port)
	cfg.UpstreamTLS = config.UpstreamTLSConfig{
		Enabled:            true,
		KeyStore:           writeStore(t, "server", upstreamCA.issue(t, "relay", ca.WithIPAddresses(loopback)), "server-pass"),
		TrustStore:         clientsCA.trustStore(t, "clients"),
		ClientAuthRequired: true,
	}
	cfg.DownstreamTLS = config.DownstreamTLSConfig{
		Enabled:    true,
		TrustStore: downstreamCA.trustStore(t, "downstream"),
	}
	cfg.Issuance = config.IssuanceConfig{
		Enabled:  true,
		CA:       config.CAConfig{KeyStore: writeStore(t, "ca", issuingCA.bundle, "ca-pass")},
		Validity: time.Hour,
		Ledger:   config.LedgerConfig{Backend: "memory"},
	}
	app := newApp(t, cfg)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer app.Shutdown(ctx)

	for _, name := range []string{StoreUpstreamKey, StoreUpstreamTrust, StoreDownstreamTrust, StoreCA} {
		if _, ok := app.Store(name); !ok {
			t.Errorf("store %s not registered", name)
		}
	}

	ch, _ := app.Channel("main")
	alice, _ := clientsCA.issue(t, "alice").TLSCertificate()
	conn, err := tls.Dial("tcp", ch.Addr().String(), &tls.Config{
		RootCAs:      upstreamCA.pool(),
		Certificates: []tls.Certificate{*alice},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer conn.Close()

	if got := roundTrip(t, conn, "secure"); got != "secure" {
		t.Fatalf("echo = %q", got)
	}

	select {
	case peer := <-peers:
		if peer == nil || peer.Subject.CommonName != "alice" {
			t.Fatalf("downstream peer = %v, want CN alice", peer)
		}
		if peer.Issuer.CommonName != "issuing-ca" {
			t.Errorf("issuer = %q, want issuing-ca", peer.Issuer.CommonName)
		}
		if got := peer.NotAfter.Sub(peer.NotBefore); got != time.Hour+cfg.Issuance.Backdate {
			t.Errorf("validity = %v, want %v", got, time.Hour+cfg.Issuance.Backdate)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("downstream saw no connection")
	}

	records, err := app.Ledger().Query(ctx, &issuance.Query{Subject: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("ledger holds %d records for alice, want 1", len(records))
	}
	if records[0].Channel != "main" || records[0].ConnectionID == "" {
		t.Errorf("record not tied to its connection: %+v", records[0])
	}

	findings := app.ExpiryMonitor().Check(ctx)
	if len(findings) == 0 {
		t.Error("expiry monitor inspected no certificates")
	}
}

func TestApplication_GeneratedCA(t *testing.T) {
	cfg := baseConfig(9000)
	cfg.DownstreamTLS.Enabled = true
	cfg.Issuance.Enabled = true
	cfg.Issuance.CA.Generate.IssuerDN = "CN=Relay Issuing CA,O=Example,C=DE"
	cfg.Issuance.Ledger.Backend = "none"
	app := newApp(t, cfg)
	defer app.Shutdown(context.Background())

	m, ok := app.Store(StoreCA)
	if !ok {
		t.Fatal("generated CA store not registered")
	}
	cert, ok := m.Get().Certificate(keystore.DefaultKeyAlias)
	if !ok {
		t.Fatal("generated CA has no key entry")
	}
	if !cert.IsCA {
		t.Error("generated certificate is not a CA")
	}
	if cert.Subject.CommonName != "Relay Issuing CA" || len(cert.Subject.Organization) != 1 || cert.Subject.Organization[0] != "Example" {
		t.Errorf("subject = %s", cert.Subject)
	}
	if app.Ledger() != nil {
		t.Error("ledger opened for the none backend")
	}
}

func TestApplication_StartBindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	cfg := baseConfig(9000)
	cfg.Proxy.Channels = append(cfg.Proxy.Channels, config.ChannelConfig{
		Name:       "busy",
		Upstream:   config.EndpointConfig{Host: "127.0.0.1", Port: busy.Addr().(*net.TCPAddr).Port},
		Downstream: config.EndpointConfig{Host: "127.0.0.1", Port: 9001},
	})
	app := newApp(t, cfg)
	defer app.Shutdown(context.Background())

	if err := app.Start(context.Background()); err == nil {
		t.Fatal("Start() succeeded on an occupied port")
	}
	main, _ := app.Channel("main")
	if main.Serving() {
		t.Error("channel main left serving after a failed Start")
	}
}

func TestApplication_RunReleasesOnStartFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	cfg := baseConfig(9000)
	cfg.Proxy.Channels[0].Upstream.Port = busy.Addr().(*net.TCPAddr).Port
	cfg.DownstreamTLS.Enabled = true
	cfg.Issuance.Enabled = true
	cfg.Issuance.CA.Generate.IssuerDN = "CN=Relay Issuing CA"
	cfg.Issuance.Ledger = config.LedgerConfig{
		Backend:       "memory",
		Retention:     time.Hour,
		PruneSchedule: "@every 1h",
	}
	app := newApp(t, cfg)

	if err := app.Run(context.Background()); err == nil {
		t.Fatal("Run() succeeded on an occupied port")
	}
	if app.ExpiryMonitor().IsRunning() {
		t.Error("expiry monitor still running after a failed Run")
	}
	if app.pruner == nil {
		t.Fatal("retention pruner not configured")
	}
	if app.pruner.Scheduler().IsRunning() {
		t.Error("retention scheduler still running after a failed Run")
	}
	if _, err := app.Ledger().Count(context.Background(), &issuance.Query{}); !errors.Is(err, issuance.ErrStoreClosed) {
		t.Errorf("Count() error = %v, want ErrStoreClosed", err)
	}
	if err := app.Start(context.Background()); err == nil {
		t.Error("Start() succeeded after Run shut the application down")
	}
}

func TestApplication_RunStopsOnCancel(t *testing.T) {
	port, _ := startEcho(t, nil)
	app := newApp(t, baseConfig(port))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		ch, _ := app.Channel("main")
		if ch.Serving() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("channel never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestOpenLedger(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.LedgerConfig
		wantNil bool
		wantErr bool
	}{
		{name: "none", cfg: config.LedgerConfig{Backend: "none"}, wantNil: true},
		{name: "memory", cfg: config.LedgerConfig{Backend: "memory"}},
		{name: "sqlite", cfg: config.LedgerConfig{Backend: "sqlite", Path: filepath.Join(dir, "nested", "issued.db")}},
		{name: "unsupported", cfg: config.LedgerConfig{Backend: "postgres"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openLedger(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("openLedger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (store == nil) != tt.wantNil {
				t.Fatalf("openLedger() store = %v, wantNil %v", store, tt.wantNil)
			}
			if store != nil {
				defer store.Close()
				if _, err := store.Count(context.Background(), &issuance.Query{}); err != nil {
					t.Errorf("Count() error = %v", err)
				}
			}
		})
	}
}

func TestPruneSchedule(t *testing.T) {
	if got := pruneSchedule(&config.LedgerConfig{PruneSchedule: "0 3 * * *"}); got != "" {
		t.Errorf("schedule without retention = %q, want empty", got)
	}
	if got := pruneSchedule(&config.LedgerConfig{Retention: time.Hour, PruneSchedule: "0 3 * * *"}); got != "0 3 * * *" {
		t.Errorf("schedule = %q", got)
	}
}
