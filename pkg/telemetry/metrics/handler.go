package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HandlerOption configures the metrics endpoint.
type HandlerOption func(*promhttp.HandlerOpts)

// WithScrapeTimeout bounds how long a scrape may spend gathering metrics.
func WithScrapeTimeout(d time.Duration) HandlerOption {
	return func(o *promhttp.HandlerOpts) { o.Timeout = d }
}

// WithErrorLogger logs gathering and encoding errors to logger.
func WithErrorLogger(logger *slog.Logger) HandlerOption {
	return func(o *promhttp.HandlerOpts) { o.ErrorLog = slogPrinter{logger} }
}

// Handler serves the collector's registry in the Prometheus text format, or
// OpenMetrics when the scraper asks for it. A scrape that hits a broken
// collector still returns the remaining metrics.
//
// A nil or disabled collector serves 404.
func (c *Collector) Handler(opts ...HandlerOption) http.Handler {
	if !c.enabled() {
		return http.NotFoundHandler()
	}

	o := promhttp.HandlerOpts{
		EnableOpenMetrics:   true,
		ErrorHandling:       promhttp.ContinueOnError,
		MaxRequestsInFlight: 4,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return promhttp.HandlerFor(c.registry, o)
}

type slogPrinter struct {
	logger *slog.Logger
}

func (p slogPrinter) Println(v ...interface{}) {
	p.logger.Error("metrics scrape failed", "error", fmt.Sprint(v...))
}
