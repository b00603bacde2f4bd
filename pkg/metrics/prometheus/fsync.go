package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/fsyncd/pkg/metrics"
)

// fsyncMetrics is the Prometheus implementation of metrics.FsyncMetrics.
type fsyncMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	requestsInFlight       *prometheus.GaugeVec
	bytesTransferred       *prometheus.CounterVec
	protocolErrors         *prometheus.CounterVec
	sleepsTotal            *prometheus.CounterVec
	sleepDuration          prometheus.Histogram
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
}

// NewFsyncMetrics creates a Prometheus-backed FsyncMetrics registered on the
// global registry.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not
// called). Must be called at most once per registry.
func NewFsyncMetrics() metrics.FsyncMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopFsyncMetrics()
	}
	return newFsyncMetrics(metrics.GetRegistry())
}

func newFsyncMetrics(reg prometheus.Registerer) *fsyncMetrics {
	return &fsyncMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsyncd_requests_total",
				Help: "Total number of requests by command and response status",
			},
			[]string{"command", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "fsyncd_request_duration_milliseconds",
				Help: "Duration of requests in milliseconds, SLEEP excluded",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"command"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fsyncd_requests_in_flight",
				Help: "Current number of requests being processed",
			},
			[]string{"command"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsyncd_bytes_transferred_total",
				Help: "Total file content bytes moved by GET and PUT",
			},
			[]string{"command", "direction"},
		),
		protocolErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsyncd_protocol_errors_total",
				Help: "Total number of malformed requests by error kind",
			},
			[]string{"kind"},
		),
		sleepsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsyncd_sleeps_total",
				Help: "Total number of SLEEP waits by outcome",
			},
			[]string{"outcome"},
		),
		sleepDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "fsyncd_sleep_duration_seconds",
				Help: "Time SLEEP requests spent waiting",
				Buckets: []float64{
					0.1,  // 100ms
					1,    // 1s
					10,   // 10s
					60,   // 1m
					600,  // 10m
					3600, // 1h
				},
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fsyncd_active_connections",
				Help: "Current number of active connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fsyncd_connections_accepted_total",
				Help: "Total number of connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fsyncd_connections_closed_total",
				Help: "Total number of connections closed",
			},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fsyncd_connections_force_closed_total",
				Help: "Total number of connections force-closed during shutdown timeout",
			},
		),
	}
}

func (m *fsyncMetrics) RecordRequest(command string, status string, duration time.Duration) {
	if status == "" {
		status = "none"
	}
	m.requestsTotal.WithLabelValues(command, status).Inc()
	if command != "SLEEP" {
		m.requestDuration.WithLabelValues(command).Observe(duration.Seconds() * 1000)
	}
}

func (m *fsyncMetrics) RecordRequestStart(command string) {
	m.requestsInFlight.WithLabelValues(command).Inc()
}

func (m *fsyncMetrics) RecordRequestEnd(command string) {
	m.requestsInFlight.WithLabelValues(command).Dec()
}

func (m *fsyncMetrics) RecordBytesTransferred(command string, direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(command, direction).Add(float64(bytes))
}

func (m *fsyncMetrics) RecordProtocolError(kind string) {
	m.protocolErrors.WithLabelValues(kind).Inc()
}

func (m *fsyncMetrics) RecordSleep(outcome string, duration time.Duration) {
	m.sleepsTotal.WithLabelValues(outcome).Inc()
	m.sleepDuration.Observe(duration.Seconds())
}

func (m *fsyncMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *fsyncMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *fsyncMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *fsyncMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}
