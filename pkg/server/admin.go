package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"mercator-hq/tlsrelay/pkg/telemetry/health"
	"mercator-hq/tlsrelay/pkg/telemetry/metrics"
)

// AdminHandler returns the admin endpoint routes: /metrics (when metrics
// are enabled), /health, /ready and /version.
func (a *Application) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	if a.cfg.Telemetry.Metrics.Enabled {
		mux.Handle("/metrics", a.metrics.Handler(
			metrics.WithErrorLogger(a.logger),
			metrics.WithScrapeTimeout(10*time.Second),
		))
	}
	health.Register(mux, a.health, a.build.Version, a.build.Commit, a.build.BuildTime)
	return mux
}

// startAdmin must be called with a.mu held.
func (a *Application) startAdmin(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin server: listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           a.AdminHandler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	a.admin = srv
	a.adminLn = ln

	go func() {
		a.logger.Info("admin server listening", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("admin server error", "error", err)
		}
	}()
	return nil
}

// AdminAddr returns the bound admin address, or nil when the admin endpoint
// is not running.
func (a *Application) AdminAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.adminLn == nil {
		return nil
	}
	return a.adminLn.Addr()
}
