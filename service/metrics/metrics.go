package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Ledger RPC metrics
	ledgerRPCCallsTotal        *prometheus.CounterVec
	ledgerRPCCallDuration      *prometheus.HistogramVec
	ledgerRPCRateLimitHits     *prometheus.CounterVec
	ledgerRPCRetries           *prometheus.CounterVec
	ledgerRPCSignaturesPerCall *prometheus.HistogramVec

	// Event processing metrics
	activityParsedTotal    *prometheus.CounterVec
	eventsPersistedTotal   *prometheus.CounterVec
	eventsDuplicateTotal   *prometheus.CounterVec
	pollTickDuration       *prometheus.HistogramVec
	pollTicksTotal         *prometheus.CounterVec
	pollAddressesSkipped   *prometheus.CounterVec
	watchedAddressesActive prometheus.Gauge

	// Broadcast metrics
	wsActiveConnections prometheus.Gauge
	wsEventsSent        *prometheus.CounterVec
	wsClientsDropped    *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		ledgerRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rpc_calls_total",
				Help: "Total number of ledger RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		ledgerRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_rpc_call_duration_seconds",
				Help:    "Duration of ledger RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		ledgerRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rpc_rate_limit_hits_total",
				Help: "Total number of ledger RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		ledgerRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rpc_retries_total",
				Help: "Total number of ledger RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		ledgerRPCSignaturesPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_rpc_signatures_per_call",
				Help:    "Number of signatures returned per GetSignaturesForAddress call",
				Buckets: []float64{1, 5, 10, 25, 50, 100},
			},
			[]string{"endpoint"},
		),

		activityParsedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_parsed_total",
				Help: "Total number of activity detail parse attempts",
			},
			[]string{"address", "status"},
		),
		eventsPersistedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_persisted_total",
				Help: "Total number of normalized events written to the store",
			},
			[]string{"address"},
		),
		eventsDuplicateTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_duplicate_total",
				Help: "Total number of duplicate events absorbed by the sink",
			},
			[]string{"address"},
		),
		pollTickDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poll_tick_duration_seconds",
				Help:    "Duration of a full poll tick across all watched addresses",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),
		pollTicksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poll_ticks_total",
				Help: "Total number of poll ticks",
			},
			[]string{"status"},
		),
		pollAddressesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poll_addresses_skipped_total",
				Help: "Addresses skipped within a tick, by reason",
			},
			[]string{"reason"},
		),
		watchedAddressesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "watched_addresses_active",
				Help: "Number of currently active watched addresses",
			},
		),

		wsActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ws_active_connections",
				Help: "Number of open WebSocket subscriptions",
			},
		),
		wsEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ws_events_sent_total",
				Help: "Total number of WebSocket messages sent",
			},
			[]string{"event_type"},
		),
		wsClientsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ws_clients_dropped_total",
				Help: "Subscriptions closed by the server, by reason",
			},
			[]string{"reason"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),

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
	}
}

// Ledger RPC metric helpers

// RecordRPCCall records a ledger RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.ledgerRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.ledgerRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.ledgerRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.ledgerRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordRPCSignaturesPerCall records the number of signatures fetched.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count float64) {
	m.ledgerRPCSignaturesPerCall.WithLabelValues(endpoint).Observe(count)
}

// Event processing metric helpers

// RecordActivityParsed records an activity detail parse attempt.
func (m *Metrics) RecordActivityParsed(address, status string) {
	m.activityParsedTotal.WithLabelValues(address, status).Inc()
}

// RecordEventPersisted records a normalized event written to the store.
func (m *Metrics) RecordEventPersisted(address string) {
	m.eventsPersistedTotal.WithLabelValues(address).Inc()
}

// RecordEventDuplicate records a duplicate insert absorbed by the sink.
func (m *Metrics) RecordEventDuplicate(address string) {
	m.eventsDuplicateTotal.WithLabelValues(address).Inc()
}

// RecordPollTick records a completed poll tick.
func (m *Metrics) RecordPollTick(status string, duration float64) {
	m.pollTickDuration.WithLabelValues(status).Observe(duration)
	m.pollTicksTotal.WithLabelValues(status).Inc()
}

// RecordAddressSkipped records an address skipped within a tick.
func (m *Metrics) RecordAddressSkipped(reason string) {
	m.pollAddressesSkipped.WithLabelValues(reason).Inc()
}

// SetWatchedAddresses records the current active watch count.
func (m *Metrics) SetWatchedAddresses(count int) {
	m.watchedAddressesActive.Set(float64(count))
}

// Broadcast metric helpers

// RecordWSConnectionChange records a change in open subscription count.
func (m *Metrics) RecordWSConnectionChange(delta float64) {
	m.wsActiveConnections.Add(delta)
}

// RecordWSEventSent records a WebSocket message being sent.
func (m *Metrics) RecordWSEventSent(eventType string) {
	m.wsEventsSent.WithLabelValues(eventType).Inc()
}

// RecordWSClientDropped records a server-side disconnect.
func (m *Metrics) RecordWSClientDropped(reason string) {
	m.wsClientsDropped.WithLabelValues(reason).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

func statusCodeToString(code int) string {
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
