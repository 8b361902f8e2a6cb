package monitor

import (
	"context"
	"crypto/x509/pkix"
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

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func authority(t *testing.T, cn string, validity time.Duration) *keystore.Bundle {
	t.Helper()
	b, err := ca.GenerateAuthority(ca.GenerateOptions{
		Subject:   pkix.Name{CommonName: cn},
		NotBefore: base.Add(-time.Hour),
		NotAfter:  base.Add(validity),
	})
	if err != nil {
		t.Fatalf("GenerateAuthority: %v", err)
	}
	return b
}

func manager(b *keystore.Bundle) *keystore.Manager {
	return keystore.NewManager(keystore.StaticLoader(b), time.Hour)
}

func newMonitor(t *testing.T, cfg *config.ExpiryCheckConfig) (*ExpiryMonitor, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "tlsrelay"}, reg)
	m := NewExpiryMonitor(cfg, collector,
		WithClock(func() time.Time { return base }),
		WithLogger(logging.Discard()),
	)
	return m, reg
}

func TestExpiryMonitor_Check(t *testing.T) {
	soon := authority(t, "soon", 10*24*time.Hour)
	later := authority(t, "later", 100*24*time.Hour)
	expired := authority(t, "expired", -time.Minute)

	soonCert, _ := soon.Certificate(keystore.DefaultKeyAlias)
	trust, err := keystore.NewTrustBundle(soonCert)
	if err != nil {
		t.Fatal(err)
	}

	m, reg := newMonitor(t, &config.ExpiryCheckConfig{WarnBefore: 30 * 24 * time.Hour})
	m.Watch("b.key", manager(later))
	m.Watch("a.key", manager(soon))
	m.Watch("c.trust", manager(trust))
	m.Watch("d.key", manager(expired))
	m.Watch("ignored", nil)

	findings := m.Check(context.Background())

	tests := []struct {
		store, alias string
		remaining    time.Duration
		warning      string
		expired      bool
	}{
		{"a.key", "key", 10 * 24 * time.Hour, "expires in 10 days", false},
		{"b.key", "key", 100 * 24 * time.Hour, "", false},
		{"c.trust", "ca", 10 * 24 * time.Hour, "expires in 10 days", false},
		{"d.key", "key", -time.Minute, "expired", true},
	}
	if len(findings) != len(tests) {
		t.Fatalf("Check() returned %d findings, want %d: %+v", len(findings), len(tests), findings)
	}

	for i, tt := range tests {
		f := findings[i]
		if f.Store != tt.store || f.Alias != tt.alias {
			t.Errorf("finding %d = %s/%s, want %s/%s", i, f.Store, f.Alias, tt.store, tt.alias)
		}
		if f.Remaining != tt.remaining {
			t.Errorf("%s: Remaining = %v, want %v", tt.store, f.Remaining, tt.remaining)
		}
		if tt.warning == "" && f.Warning != "" {
			t.Errorf("%s: unexpected warning %q", tt.store, f.Warning)
		}
		if !strings.Contains(f.Warning, tt.warning) {
			t.Errorf("%s: Warning = %q, want it to contain %q", tt.store, f.Warning, tt.warning)
		}
		if f.Expired() != tt.expired {
			t.Errorf("%s: Expired() = %v", tt.store, f.Expired())
		}
	}

	series, err := testutil.GatherAndCount(reg, "tlsrelay_certificate_expiry_seconds")
	if err != nil {
		t.Fatal(err)
	}
	if series != len(tests) {
		t.Errorf("expiry gauge series = %d, want %d", series, len(tests))
	}

	if got := m.Stores(); strings.Join(got, ",") != "a.key,b.key,c.trust,d.key" {
		t.Errorf("Stores() = %v", got)
	}
}

func TestExpiryMonitor_CancelledContext(t *testing.T) {
	m, _ := newMonitor(t, nil)
	m.Watch("key", manager(authority(t, "x", time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if findings := m.Check(ctx); len(findings) != 0 {
		t.Errorf("Check() on cancelled context returned %d findings", len(findings))
	}
}

func TestExpiryMonitor_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantErr     bool
		wantRunning bool
	}{
		{name: "every hour", schedule: "@every 1h", wantRunning: true},
		{name: "standard cron", schedule: "0 * * * *", wantRunning: true},
		{name: "empty schedule", schedule: ""},
		{name: "invalid", schedule: "not a schedule", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newMonitor(t, &config.ExpiryCheckConfig{Schedule: tt.schedule, WarnBefore: time.Hour})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := m.Start(ctx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Start() error = %v, wantErr %v", err, tt.wantErr)
			}
			if m.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", m.IsRunning(), tt.wantRunning)
			}

			m.Stop()
			if m.IsRunning() {
				t.Error("IsRunning() = true after Stop")
			}
		})
	}
}
