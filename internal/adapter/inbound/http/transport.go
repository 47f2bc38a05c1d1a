// Package http provides the HTTP transport adapter for the decision
// service.
package http

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sentinelpolicy/policygate/internal/service"
)

// HTTPTransport is the inbound adapter that serves the decision endpoint
// over plain HTTP or HTTPS.
type HTTPTransport struct {
	decisionService *service.DecisionService
	server          *http.Server
	addr            string
	certFile        string
	keyFile         string
	logger          *slog.Logger
	metrics         *Metrics
	healthChecker   *HealthChecker
	maxPayloadBytes int64
	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
	requestDeadline   time.Duration
	registerers       []prometheus.Collector
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) { t.addr = addr }
}

// WithTLS enables TLS with the provided certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(t *HTTPTransport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) { t.logger = logger }
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) { t.healthChecker = hc }
}

// WithMaxPayloadBytes bounds the accepted request body size (spec §6,
// PAYLOAD_TOO_LARGE).
func WithMaxPayloadBytes(n int64) Option {
	return func(t *HTTPTransport) { t.maxPayloadBytes = n }
}

// WithReadHeaderTimeout bounds how long the server waits to read request headers.
func WithReadHeaderTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) { t.readHeaderTimeout = d }
}

// WithShutdownTimeout bounds how long graceful shutdown waits for in-flight requests.
func WithShutdownTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) { t.shutdownTimeout = d }
}

// WithRequestDeadline bounds how long a single /runtime-check call may run
// before it is failed rather than left to hang. Zero disables the deadline.
func WithRequestDeadline(d time.Duration) Option {
	return func(t *HTTPTransport) { t.requestDeadline = d }
}

// WithMetricsCollectors registers additional prometheus collectors (such as
// the decision service's own Metrics fields) into the registry backing
// /metrics, so transport- and domain-level metrics are scraped from one
// endpoint instead of two.
func WithMetricsCollectors(cs ...prometheus.Collector) Option {
	return func(t *HTTPTransport) { t.registerers = append(t.registerers, cs...) }
}

// NewHTTPTransport creates an HTTP transport adapter wrapping the given
// decision service.
func NewHTTPTransport(decisionService *service.DecisionService, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		decisionService:   decisionService,
		addr:              "0.0.0.0:8080",
		logger:            slog.Default(),
		maxPayloadBytes:   1 << 20,
		readHeaderTimeout: 5 * time.Second,
		shutdownTimeout:   10 * time.Second,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Start begins accepting HTTP connections and serving the decision
// endpoint. It blocks until the context is cancelled or an error occurs.
func (t *HTTPTransport) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t.metrics = NewMetrics(reg)
	if len(t.registerers) > 0 {
		reg.MustRegister(t.registerers...)
	}

	// Build middleware chain (outermost first): Metrics -> RequestID -> Handler.
	decisionH := decisionHandler(t.decisionService, t.maxPayloadBytes, t.requestDeadline)
	decisionH = RequestIDMiddleware(t.logger)(decisionH)
	decisionH = MetricsMiddleware(t.metrics)(decisionH)

	mux := http.NewServeMux()
	mux.Handle("/runtime-check", decisionH)
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	} else {
		mux.Handle("/health", NewHealthChecker(nil, "").Handler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           mux,
		ReadHeaderTimeout: t.readHeaderTimeout,
	}

	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), t.shutdownTimeout)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
