package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"mercator-hq/tlsrelay/pkg/config"
	"mercator-hq/tlsrelay/pkg/issuance"
	"mercator-hq/tlsrelay/pkg/proxy"
	"mercator-hq/tlsrelay/pkg/security/keystore"
	"mercator-hq/tlsrelay/pkg/security/monitor"
	tlsutil "mercator-hq/tlsrelay/pkg/security/tls"
	"mercator-hq/tlsrelay/pkg/telemetry/health"
	"mercator-hq/tlsrelay/pkg/telemetry/logging"
	"mercator-hq/tlsrelay/pkg/telemetry/metrics"
	"mercator-hq/tlsrelay/pkg/telemetry/tracing"
)

// DefaultCheckTimeout bounds each readiness check.
const DefaultCheckTimeout = 5 * time.Second

// BuildInfo is reported by the /version endpoint and in traces.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Option configures an Application.
type Option func(*Application)

// WithLogger sets the logger. By default one is built from the logging
// configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Application) { a.logger = logger }
}

// WithRegistry sets the Prometheus registry metrics are registered with.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *Application) { a.registry = reg }
}

// WithBuildInfo sets the reported build information.
func WithBuildInfo(info BuildInfo) Option {
	return func(a *Application) { a.build = info }
}

// WithTracingOptions passes options to the tracer, for example a test
// exporter.
func WithTracingOptions(opts ...tracing.Option) Option {
	return func(a *Application) { a.tracingOpts = append(a.tracingOpts, opts...) }
}

// Application is a configured tlsrelay instance.
type Application struct {
	cfg         *config.Config
	logger      *slog.Logger
	registry    *prometheus.Registry
	build       BuildInfo
	tracingOpts []tracing.Option

	metrics *metrics.Collector
	tracer  *tracing.Tracer
	health  *health.Checker

	stores   []managedStore
	watcher  *keystore.Watcher
	ledger   issuance.Store
	pruner   *issuance.Pruner
	monitor  *monitor.ExpiryMonitor
	channels []*proxy.Channel

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	admin    *http.Server
	adminLn  net.Listener
	bg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// New builds every component described by cfg without opening any
// listener. Store files are loaded once so that configuration mistakes
// surface here rather than on the first connection.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	a := &Application{
		cfg:   cfg,
		build: BuildInfo{Version: "dev", Commit: "unknown", BuildTime: "unknown"},
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		logger, err := logging.New(logging.Config{
			Level:         cfg.Telemetry.Logging.Level,
			Format:        cfg.Telemetry.Logging.Format,
			AddSource:     cfg.Telemetry.Logging.AddSource,
			RedactSecrets: cfg.Telemetry.Logging.Redact(),
		})
		if err != nil {
			return nil, err
		}
		a.logger = logger
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}
	a.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, a.registry)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing,
		append([]tracing.Option{tracing.WithServiceVersion(a.build.Version)}, a.tracingOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracer = tracer

	if err := a.assemble(); err != nil {
		a.release(context.Background())
		return nil, err
	}
	return a, nil
}

// assemble builds the TLS contexts, identity source, channels and health
// checks.
func (a *Application) assemble() error {
	cfg := a.cfg

	var server *tlsutil.ServerBuilder
	if cfg.UpstreamTLS.Enabled {
		var err error
		if server, err = a.buildServerTLS(&cfg.UpstreamTLS); err != nil {
			return err
		}
	}

	var (
		client   *tlsutil.ClientBuilder
		identity proxy.ClientIdentitySource
	)
	if cfg.DownstreamTLS.Enabled {
		var err error
		if client, err = a.buildClientTLS(&cfg.DownstreamTLS); err != nil {
			return err
		}
		if identity, err = a.buildIdentity(); err != nil {
			return err
		}
	}

	factory := proxy.NewChannelFactory(proxy.ChannelOptions{
		ServerTLS:        server,
		ClientTLS:        client,
		Identity:         identity,
		DialTimeout:      cfg.Proxy.DialTimeout,
		HandshakeTimeout: cfg.Proxy.HandshakeTimeout,
		WriteQueueSize:   cfg.Proxy.WriteQueueSize,
		ReadBufferSize:   cfg.Proxy.ReadBufferSize,
		ShutdownTimeout:  cfg.Proxy.ShutdownTimeout,
		Logger:           a.logger,
		Metrics:          a.metrics,
		Tracer:           a.tracer,
	})

	for i, chCfg := range cfg.Proxy.Channels {
		name := chCfg.Name
		if name == "" {
			name = fmt.Sprintf("channel-%d", i)
		}
		ch, err := factory.Create(name,
			proxy.Endpoint{Host: chCfg.Upstream.Host, Port: chCfg.Upstream.Port},
			proxy.Endpoint{Host: chCfg.Downstream.Host, Port: chCfg.Downstream.Port},
		)
		if err != nil {
			return err
		}
		a.channels = append(a.channels, ch)
	}

	watcher, err := a.watchStores()
	if err != nil {
		return err
	}
	a.watcher = watcher

	a.health = health.New(DefaultCheckTimeout)
	a.monitor = monitor.NewExpiryMonitor(&cfg.Telemetry.ExpiryCheck, a.metrics,
		monitor.WithLogger(a.logger.With("component", "expiry_monitor")))
	for _, s := range a.stores {
		a.health.RegisterCritical("store."+s.name, health.KeyStoreCheck(s.manager, s.needsKey, nil))
		a.monitor.Watch(s.name, s.manager)
	}
	for _, ch := range a.channels {
		a.health.RegisterCritical("channel."+ch.Name(), health.ServingCheck(ch.Serving))
	}
	if a.ledger != nil {
		a.health.RegisterCheck("issuance.ledger", func(ctx context.Context) error {
			_, err := a.ledger.Count(ctx, &issuance.Query{Limit: 1})
			return err
		})
	}

	return nil
}

func (a *Application) buildServerTLS(cfg *config.UpstreamTLSConfig) (*tlsutil.ServerBuilder, error) {
	minVersion, err := tlsutil.ParseTLSVersion(cfg.MinVersion)
	if err != nil {
		return nil, fmt.Errorf("upstream_tls.min_version: %w", err)
	}
	suites, err := tlsutil.ParseCipherSuites(cfg.CipherSuites)
	if err != nil {
		return nil, fmt.Errorf("upstream_tls.cipher_suites: %w", err)
	}

	key, err := a.newStore(StoreUpstreamKey, cfg.KeyStore, true)
	if err != nil {
		return nil, err
	}
	var trust *keystore.Manager
	if !cfg.TrustStore.IsZero() {
		if trust, err = a.newStore(StoreUpstreamTrust, cfg.TrustStore, false); err != nil {
			return nil, err
		}
	}

	return tlsutil.NewServerBuilder(tlsutil.ServerOptions{
		KeyManager:        key,
		TrustManager:      trust,
		RequireClientCert: cfg.ClientAuthRequired,
		MinVersion:        minVersion,
		CipherSuites:      suites,
	})
}

func (a *Application) buildClientTLS(cfg *config.DownstreamTLSConfig) (*tlsutil.ClientBuilder, error) {
	minVersion, err := tlsutil.ParseTLSVersion(cfg.MinVersion)
	if err != nil {
		return nil, fmt.Errorf("downstream_tls.min_version: %w", err)
	}
	suites, err := tlsutil.ParseCipherSuites(cfg.CipherSuites)
	if err != nil {
		return nil, fmt.Errorf("downstream_tls.cipher_suites: %w", err)
	}

	var trust *keystore.Manager
	if !cfg.TrustStore.IsZero() {
		if trust, err = a.newStore(StoreDownstreamTrust, cfg.TrustStore, false); err != nil {
			return nil, err
		}
	}

	var verifier tlsutil.HostnameVerifier = tlsutil.StrictHostnameVerifier{}
	if !cfg.VerifyHostname() {
		a.logger.Warn("downstream hostname verification is disabled")
		verifier = tlsutil.NoopHostnameVerifier{}
	}

	return tlsutil.NewClientBuilder(tlsutil.ClientOptions{
		TrustManager:     trust,
		HostnameVerifier: verifier,
		MinVersion:       minVersion,
		CipherSuites:     suites,
	})
}

// Start starts the background jobs, every channel and the admin endpoint.
// If a channel cannot bind, the channels already started are closed and
// the error is returned.
func (a *Application) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return errors.New("application is stopped")
	}
	if a.started {
		return errors.New("application already started")
	}

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	if a.watcher != nil {
		a.bg.Add(1)
		go func() {
			defer a.bg.Done()
			if err := a.watcher.Watch(bgCtx); err != nil {
				a.logger.Error("store file watcher stopped", "error", err)
			}
		}()
	}
	// abort stops the jobs started so far. The ledger and tracer stay open
	// until Shutdown.
	abort := func(err error) error {
		cancel()
		if a.pruner != nil {
			a.pruner.Scheduler().Stop()
		}
		a.monitor.Stop()
		return err
	}

	if a.pruner != nil {
		if err := a.pruner.Scheduler().Start(bgCtx); err != nil {
			return abort(err)
		}
	}
	if err := a.monitor.Start(bgCtx); err != nil {
		return abort(err)
	}

	for i, ch := range a.channels {
		if err := ch.Start(); err != nil {
			for _, started := range a.channels[:i] {
				_ = started.Close()
			}
			return abort(err)
		}
	}

	if a.cfg.Telemetry.Admin.Enabled {
		if err := a.startAdmin(a.cfg.Telemetry.Admin.ListenAddress); err != nil {
			for _, ch := range a.channels {
				_ = ch.Close()
			}
			return abort(err)
		}
	}

	a.started = true
	a.logger.Info("tlsrelay started",
		"version", a.build.Version,
		"channels", len(a.channels),
		"stores", len(a.stores),
		"issuance", a.cfg.Issuance.Enabled,
	)
	return nil
}

// Run starts the application, blocks until ctx is done and then shuts down
// within the configured shutdown timeout. If Start fails the application is
// shut down before the error is returned.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Proxy.ShutdownTimeout)
		defer cancel()
		return errors.Join(err, a.Shutdown(shutdownCtx))
	}
	<-ctx.Done()

	a.logger.Info("shutting down", "timeout", a.cfg.Proxy.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Proxy.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown closes every channel in parallel, waiting for open connections
// until ctx is done, then stops the admin endpoint and the background jobs.
// Only the first call does any work.
func (a *Application) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.stopped = true
		a.mu.Unlock()

		var g errgroup.Group
		for _, ch := range a.channels {
			g.Go(func() error { return ch.Shutdown(ctx) })
		}
		err := g.Wait()

		a.mu.Lock()
		admin := a.admin
		a.mu.Unlock()
		if admin != nil {
			if aerr := admin.Shutdown(ctx); aerr != nil {
				err = errors.Join(err, fmt.Errorf("admin server shutdown: %w", aerr))
			}
		}

		a.stopErr = errors.Join(err, a.release(ctx))
		a.logger.Info("tlsrelay stopped")
	})
	return a.stopErr
}

// release stops background jobs and closes the ledger and tracer.
func (a *Application) release(ctx context.Context) error {
	var errs []error

	if a.cancel != nil {
		a.cancel()
	}
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	a.bg.Wait()

	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.pruner != nil {
		a.pruner.Scheduler().Stop()
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close issuance ledger: %w", err))
		}
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down tracer: %w", err))
	}
	return errors.Join(errs...)
}

// Channels returns the configured channels in configuration order.
func (a *Application) Channels() []*proxy.Channel {
	return append([]*proxy.Channel(nil), a.channels...)
}

// Channel returns the channel with the given name.
func (a *Application) Channel(name string) (*proxy.Channel, bool) {
	for _, ch := range a.channels {
		if ch.Name() == name {
			return ch, true
		}
	}
	return nil, false
}

// Health returns the readiness checker.
func (a *Application) Health() *health.Checker {
	return a.health
}

// Metrics returns the metrics collector.
func (a *Application) Metrics() *metrics.Collector {
	return a.metrics
}

// Ledger returns the issuance ledger, or nil when issuance is disabled or
// the ledger backend is "none".
func (a *Application) Ledger() issuance.Store {
	return a.ledger
}

// ExpiryMonitor returns the certificate expiry monitor.
func (a *Application) ExpiryMonitor() *monitor.ExpiryMonitor {
	return a.monitor
}
