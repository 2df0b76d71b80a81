package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Esplora API metrics
	esploraCallsTotal   *prometheus.CounterVec
	esploraCallDuration *prometheus.HistogramVec

	// Reconciliation metrics
	reconcilePassesTotal  *prometheus.CounterVec
	reconcilePassDuration *prometheus.HistogramVec
	reconcileTicksSkipped prometheus.Counter
	depositsCreditedTotal prometheus.Counter
	depositsPendingSeen   prometheus.Counter
	depositAmountSats     prometheus.Counter
	ledgerBalanceSats     prometheus.Gauge

	// HTTP metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Esplora API metrics
		esploraCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "esplora_calls_total",
				Help: "Total number of Esplora API calls by method and status",
			},
			[]string{"method", "status"},
		),
		esploraCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "esplora_call_duration_seconds",
				Help:    "Duration of Esplora API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),

		// Reconciliation metrics
		reconcilePassesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconcile_passes_total",
				Help: "Total number of reconciliation passes by outcome",
			},
			[]string{"status"},
		),
		reconcilePassDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconcile_pass_duration_seconds",
				Help:    "Duration of reconciliation passes in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		reconcileTicksSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reconcile_ticks_skipped_total",
				Help: "Total number of poll ticks skipped because a pass was still running",
			},
		),
		depositsCreditedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "deposits_credited_total",
				Help: "Total number of deposits credited to the ledger",
			},
		),
		depositsPendingSeen: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "deposits_pending_observed_total",
				Help: "Total number of times an unconfirmed relevant transaction was observed",
			},
		),
		depositAmountSats: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "deposit_amount_sats_total",
				Help: "Total satoshis credited to the ledger",
			},
		),
		ledgerBalanceSats: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_balance_sats",
				Help: "Current ledger balance in satoshis",
			},
		),

		// HTTP metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		// NATS metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Esplora metric helpers

// RecordEsploraCall records an Esplora API call with duration.
func (m *Metrics) RecordEsploraCall(method, status string, duration float64) {
	m.esploraCallsTotal.WithLabelValues(method, status).Inc()
	m.esploraCallDuration.WithLabelValues(method).Observe(duration)
}

// Reconciliation metric helpers

// RecordReconcilePass records a completed reconciliation pass.
func (m *Metrics) RecordReconcilePass(status string, duration float64) {
	m.reconcilePassesTotal.WithLabelValues(status).Inc()
	m.reconcilePassDuration.WithLabelValues(status).Observe(duration)
}

// RecordTickSkipped records a poll tick skipped by the single-flight guard.
func (m *Metrics) RecordTickSkipped() {
	m.reconcileTicksSkipped.Inc()
}

// RecordDepositCredited records a newly credited deposit.
func (m *Metrics) RecordDepositCredited(amountSats int64) {
	m.depositsCreditedTotal.Inc()
	m.depositAmountSats.Add(float64(amountSats))
}

// RecordPendingObserved records a relevant but not yet confirmed transaction.
func (m *Metrics) RecordPendingObserved() {
	m.depositsPendingSeen.Inc()
}

// RecordLedgerBalance records the current ledger balance.
func (m *Metrics) RecordLedgerBalance(balanceSats int64) {
	m.ledgerBalanceSats.Set(float64(balanceSats))
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
