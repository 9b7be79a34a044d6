package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/duration"
	"github.com/sensinfor/sensinfor/pkg/output/dispatcher"
	"github.com/sensinfor/sensinfor/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*PrometheusHook)(nil)

// PrometheusHook exposes session metrics for Prometheus scraping.
// Metrics live in a private registry so several hooks can coexist in one
// process.
type PrometheusHook struct {
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry
	opts     PrometheusOptions
	logger   *slog.Logger

	findingsTotal   *prometheus.CounterVec
	probesTotal     *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	sessionsTotal   *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	sessionDuration *prometheus.HistogramVec
	cvssScore       *prometheus.HistogramVec

	mu     sync.Mutex
	hosts  map[string]string // scan id -> host label
	closed bool
}

// PrometheusOptions configures the Prometheus hook behavior.
type PrometheusOptions struct {
	// Addr is the listen address for the metrics server (default ":9090").
	Addr string

	// Path for the metrics endpoint (default: "/metrics").
	Path string

	// Logger receives server errors.
	Logger *slog.Logger
}

// NewPrometheusHook creates the hook and starts serving metrics
// immediately. The server runs until Close is called.
func NewPrometheusHook(opts PrometheusOptions) (*PrometheusHook, error) {
	h, err := newPrometheusHook(opts)
	if err != nil {
		return nil, err
	}
	if err := h.startServer(); err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}
	return h, nil
}

func newPrometheusHook(opts PrometheusOptions) (*PrometheusHook, error) {
	if opts.Addr == "" {
		opts.Addr = ":9090"
	}
	if opts.Path == "" {
		opts.Path = "/metrics"
	}
	h := &PrometheusHook{
		registry: prometheus.NewRegistry(),
		opts:     opts,
		logger:   orDefault(opts.Logger),
		hosts:    make(map[string]string),
	}
	if err := h.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return h, nil
}

func (h *PrometheusHook) initMetrics() error {
	ns := defaults.ToolName

	h.findingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "findings_total",
		Help:      "Sensitive files detected, by host, category and severity",
	}, []string{"host", "category", "severity"})

	h.probesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "detectors_completed_total",
		Help:      "Detectors that finished, by host",
	}, []string{"host"})

	h.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "errors_total",
		Help:      "Non-fatal session errors, by host",
	}, []string{"host"})

	h.sessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "sessions_total",
		Help:      "Finished scan sessions, by terminal status",
	}, []string{"status"})

	h.activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "active_sessions",
		Help:      "Scan sessions currently running",
	})

	h.sessionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "session_duration_seconds",
		Help:      "Scan session wall time",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"status"})

	h.cvssScore = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "cvss_score",
		Help:      "CVSS-like score distribution of findings",
		Buckets:   []float64{2, 4, 6, 7, 8, 9, 10},
	}, []string{"category"})

	collectors := []prometheus.Collector{
		h.findingsTotal,
		h.probesTotal,
		h.errorsTotal,
		h.sessionsTotal,
		h.activeSessions,
		h.sessionDuration,
		h.cvssScore,
	}
	for _, c := range collectors {
		if err := h.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the hook's registry.
func (h *PrometheusHook) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry exposes the private registry, mainly for tests.
func (h *PrometheusHook) Registry() *prometheus.Registry { return h.registry }

func (h *PrometheusHook) startServer() error {
	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(h.opts.Path, h.Handler())

	h.listener = ln
	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: duration.MetricsShutdown,
		WriteTimeout:      2 * duration.MetricsShutdown,
	}
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("metrics server error", slog.Any("error", err))
		}
	}()
	return nil
}

// OnEvent updates metrics from the event.
func (h *PrometheusHook) OnEvent(_ context.Context, event events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	switch e := event.(type) {
	case *events.StartEvent:
		h.hosts[e.ScanID()] = hostLabel(e.Target)
		h.activeSessions.Inc()
	case *events.ProgressEvent:
		h.probesTotal.WithLabelValues(h.host(e.ScanID())).Inc()
	case *events.DetectionEvent:
		if e.Result == nil {
			return nil
		}
		host := e.Result.Hostname
		if host == "" {
			host = hostLabel(e.Result.URL)
		}
		h.findingsTotal.WithLabelValues(host, string(e.Result.Category), string(e.Result.Severity)).Inc()
		h.cvssScore.WithLabelValues(string(e.Result.Category)).Observe(e.Result.CVSSScore)
	case *events.ErrorEvent:
		h.errorsTotal.WithLabelValues(h.host(e.ScanID())).Inc()
	case *events.CompleteEvent:
		h.sessionsTotal.WithLabelValues(e.Status).Inc()
		h.sessionDuration.WithLabelValues(e.Status).Observe((time.Duration(e.DurationMs) * time.Millisecond).Seconds())
		if _, ok := h.hosts[e.ScanID()]; ok {
			h.activeSessions.Dec()
			delete(h.hosts, e.ScanID())
		}
	}
	return nil
}

func (h *PrometheusHook) host(scanID string) string {
	if host, ok := h.hosts[scanID]; ok {
		return host
	}
	return "unknown"
}

// EventTypes returns nil: every event type updates some metric.
func (h *PrometheusHook) EventTypes() []events.EventType { return nil }

// Close shuts down the metrics server.
func (h *PrometheusHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), duration.MetricsShutdown)
		defer cancel()
		return h.server.Shutdown(ctx)
	}
	return nil
}

// MetricsAddr returns the URL metrics are served at, or "" when no
// server is running.
func (h *PrometheusHook) MetricsAddr() string {
	if h.listener == nil {
		return ""
	}
	return "http://" + h.listener.Addr().String() + h.opts.Path
}

// hostLabel extracts the host from a URL for use as a metric label.
func hostLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
