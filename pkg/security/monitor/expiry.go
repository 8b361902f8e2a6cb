package monitor

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/tlsrelay/pkg/config"
	"mercator-hq/tlsrelay/pkg/security/keystore"
	tlsutil "mercator-hq/tlsrelay/pkg/security/tls"
	"mercator-hq/tlsrelay/pkg/telemetry/metrics"
)

// Finding describes one inspected certificate.
type Finding struct {
	Store     string
	Alias     string
	Subject   string
	NotAfter  time.Time
	Remaining time.Duration

	// Warning is set when the certificate is expired or expires within the
	// warning window.
	Warning string
}

// Expired reports whether the certificate is past its NotAfter.
func (f Finding) Expired() bool {
	return f.Remaining <= 0
}

// Option configures an ExpiryMonitor.
type Option func(*ExpiryMonitor)

// WithClock sets the time source used for remaining lifetimes.
func WithClock(clock func() time.Time) Option {
	return func(m *ExpiryMonitor) { m.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *ExpiryMonitor) { m.logger = logger }
}

// ExpiryMonitor periodically inspects registered stores.
type ExpiryMonitor struct {
	schedule   string
	warnBefore time.Duration
	metrics    *metrics.Collector
	clock      func() time.Time
	logger     *slog.Logger

	mu      sync.Mutex
	stores  map[string]*keystore.Manager
	cron    *cron.Cron
	running bool
}

// NewExpiryMonitor creates a monitor. A nil cfg uses the default schedule
// and warning window.
func NewExpiryMonitor(cfg *config.ExpiryCheckConfig, collector *metrics.Collector, opts ...Option) *ExpiryMonitor {
	if cfg == nil {
		cfg = &config.ExpiryCheckConfig{
			Schedule:   config.DefaultExpirySchedule,
			WarnBefore: config.DefaultExpiryWarnBefore,
		}
	}
	m := &ExpiryMonitor{
		schedule:   cfg.Schedule,
		warnBefore: cfg.WarnBefore,
		metrics:    collector,
		clock:      time.Now,
		stores:     make(map[string]*keystore.Manager),
		cron:       cron.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default().With("component", "expiry_monitor")
	}
	return m
}

// Watch registers a store under name. Registering the same name again
// replaces the manager. Nil managers are ignored.
func (m *ExpiryMonitor) Watch(name string, manager *keystore.Manager) {
	if manager == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[name] = manager
}

// Stores returns the registered store names, sorted.
func (m *ExpiryMonitor) Stores() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.stores))
	for name := range m.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check inspects every registered store once, updates the expiry gauge and
// logs a warning for each certificate inside the warning window. Leaf
// certificates of key entries and trusted certificates are both checked.
func (m *ExpiryMonitor) Check(ctx context.Context) []Finding {
	m.mu.Lock()
	stores := make(map[string]*keystore.Manager, len(m.stores))
	for name, s := range m.stores {
		stores[name] = s
	}
	m.mu.Unlock()

	now := m.clock()
	var findings []Finding

	for _, name := range sortedKeys(stores) {
		if ctx.Err() != nil {
			break
		}
		b := stores[name].Get()

		for _, e := range b.KeyEntries() {
			if leaf := e.Leaf(); leaf != nil {
				findings = append(findings, m.inspect(ctx, name, e.Alias, leaf, now))
			}
		}
		for _, e := range b.TrustedEntries() {
			findings = append(findings, m.inspect(ctx, name, e.Alias, e.Certificate, now))
		}
	}

	return findings
}

func (m *ExpiryMonitor) inspect(ctx context.Context, store, alias string, cert *x509.Certificate, now time.Time) Finding {
	remaining, warning := tlsutil.CheckCertificateExpiration(cert, now, m.warnBefore)
	f := Finding{
		Store:     store,
		Alias:     alias,
		Subject:   cert.Subject.String(),
		NotAfter:  cert.NotAfter,
		Remaining: remaining,
		Warning:   warning,
	}

	m.metrics.SetCertificateExpiry(store, alias, remaining)
	if warning != "" {
		m.logger.WarnContext(ctx, "certificate expiring",
			"store", store,
			"alias", alias,
			"subject", f.Subject,
			"not_after", f.NotAfter,
			"warning", warning,
		)
	}
	return f
}

// Start schedules periodic checks and runs one immediately. An empty
// schedule only runs the immediate check. The monitor stops when ctx is
// cancelled.
func (m *ExpiryMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	if m.schedule != "" {
		if _, err := cron.ParseStandard(m.schedule); err != nil {
			return fmt.Errorf("invalid expiry check schedule %q: %w", m.schedule, err)
		}
		if _, err := m.cron.AddFunc(m.schedule, func() { m.Check(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule expiry checks: %w", err)
		}
		m.cron.Start()
		m.running = true

		go func() {
			<-ctx.Done()
			m.Stop()
		}()
	}

	m.logger.Info("expiry monitor started",
		"schedule", m.schedule,
		"warn_before", m.warnBefore,
		"stores", len(m.stores),
	)

	go m.Check(ctx)
	return nil
}

// Stop stops the schedule and waits for a running check to finish.
func (m *ExpiryMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		<-m.cron.Stop().Done()
		m.running = false
		m.logger.Info("expiry monitor stopped")
	}
}

// IsRunning reports whether periodic checks are scheduled.
func (m *ExpiryMonitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func sortedKeys(m map[string]*keystore.Manager) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
