package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for store operations.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	config MetricsConfig

	// Operation metrics
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// Guard metrics
	guardRejections *prometheus.CounterVec

	// Store metrics
	openStores    prometheus.Gauge
	importedItems *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of store operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of store operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),

		guardRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guard_rejections_total",
				Help:      "Total number of calls rejected before reaching the storage plugin",
			},
			[]string{"method", "reason"},
		),

		openStores: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_stores",
				Help:      "Current number of open stores",
			},
		),
		importedItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imported_items_total",
				Help:      "Total number of items written by JSON imports",
			},
			[]string{"store"},
		),
	}

	registry.MustRegister(
		m.operations,
		m.operationDuration,
		m.guardRejections,
		m.openStores,
		m.importedItems,
	)

	return m, nil
}

// RecordOperation records a store operation with its outcome and duration.
func (m *Metrics) RecordOperation(operation string, err error, duration time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordGuardRejection records a call rejected by a precondition check.
func (m *Metrics) RecordGuardRejection(method, reason string) {
	if m == nil || m.guardRejections == nil {
		return
	}
	m.guardRejections.WithLabelValues(method, reason).Inc()
}

// StoreOpened increments the open store gauge.
func (m *Metrics) StoreOpened() {
	if m == nil || m.openStores == nil {
		return
	}
	m.openStores.Inc()
}

// StoreClosed decrements the open store gauge.
func (m *Metrics) StoreClosed() {
	if m == nil || m.openStores == nil {
		return
	}
	m.openStores.Dec()
}

// SetOpenStores sets the open store gauge.
func (m *Metrics) SetOpenStores(count float64) {
	if m == nil || m.openStores == nil {
		return
	}
	m.openStores.Set(count)
}

// RecordImport records the number of items written by a JSON import.
func (m *Metrics) RecordImport(store string, changes int) {
	if m == nil || m.importedItems == nil {
		return
	}
	m.importedItems.WithLabelValues(store).Add(float64(changes))
}

// Registry returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. Serve errors
// are reported to logger.
func (m *Metrics) StartMetricsServer(logger *Logger) error {
	if m == nil || !m.config.Enabled {
		return nil
	}
	if logger == nil {
		logger = NopLogger()
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(server *http.Server) {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server error")
		}
	}(m.server)

	logger.WithField("address", m.config.ListenAddress).Info("Metrics server started")
	return nil
}

// StopMetricsServer shuts the metrics server down if it was started.
func (m *Metrics) StopMetricsServer(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
