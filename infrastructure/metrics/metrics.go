// Package metrics provides Prometheus metrics collection for the ingestion
// pipeline: WebSocket connection lifecycle, message dispatch, event
// production, and price resolution.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/solpulse/ingest/infrastructure/runtime"
)

// Metrics holds all Prometheus collectors for the ingestion pipeline.
type Metrics struct {
	// Connection lifecycle
	WSConnectionsActive  *prometheus.GaugeVec
	WSConnectAttempts    *prometheus.CounterVec
	WSReconnectsTotal    *prometheus.CounterVec
	WSHandshakeDuration  *prometheus.HistogramVec
	CircuitBreakerState  *prometheus.GaugeVec

	// Message dispatch
	MessagesReceivedTotal   *prometheus.CounterVec
	MessagesDroppedTotal    *prometheus.CounterVec
	DispatchQueueDepth      *prometheus.GaugeVec
	SubscriptionConfirmTime *prometheus.HistogramVec

	// Event production
	EventsEmittedTotal *prometheus.CounterVec
	ParseErrorsTotal   *prometheus.CounterVec

	// Price monitor
	PriceUpdatesTotal    *prometheus.CounterVec
	PriceResolveDuration *prometheus.HistogramVec
	PriceCacheHitsTotal  *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered against
// the default Prometheus registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
// Pass nil to skip registration (used in tests that construct multiple
// instances in the same process).
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		WSConnectionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingest_ws_connections_active",
				Help: "Current number of open WebSocket connections, by program_id",
			},
			[]string{"program_id"},
		),
		WSConnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_ws_connect_attempts_total",
				Help: "Total WebSocket connection attempts, by program_id and outcome",
			},
			[]string{"program_id", "outcome"},
		),
		WSReconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_ws_reconnects_total",
				Help: "Total WebSocket reconnect attempts, by program_id",
			},
			[]string{"program_id"},
		),
		WSHandshakeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_ws_handshake_duration_seconds",
				Help:    "WebSocket connect+subscribe handshake duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
			},
			[]string{"program_id"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingest_circuit_breaker_state",
				Help: "Circuit breaker state by program_id: 0=closed, 1=half-open, 2=open",
			},
			[]string{"program_id"},
		),

		MessagesReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_messages_received_total",
				Help: "Total raw WebSocket frames received, by program_id and frame kind",
			},
			[]string{"program_id", "frame_kind"},
		),
		MessagesDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_messages_dropped_total",
				Help: "Total messages dropped by the bounded sink, by category and reason",
			},
			[]string{"category", "reason"},
		),
		DispatchQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingest_dispatch_queue_depth",
				Help: "Current depth of the per-connection dispatch queue",
			},
			[]string{"program_id"},
		),
		SubscriptionConfirmTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_subscription_confirm_seconds",
				Help:    "Time from subscribe request to confirmation, in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5},
			},
			[]string{"program_id", "kind"},
		),

		EventsEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_events_emitted_total",
				Help: "Total domain events emitted, by event type and dex kind",
			},
			[]string{"event_type", "dex_kind"},
		),
		ParseErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_parse_errors_total",
				Help: "Total parse failures, by dex kind and parser stage",
			},
			[]string{"dex_kind", "stage"},
		),

		PriceUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_price_updates_total",
				Help: "Total price records produced, by source",
			},
			[]string{"source"},
		),
		PriceResolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_price_resolve_duration_seconds",
				Help:    "Time to resolve a token price, by source",
				Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2},
			},
			[]string{"source"},
		),
		PriceCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_price_cache_hits_total",
				Help: "Total price cache lookups, by hit/miss",
			},
			[]string{"result"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_errors_total",
				Help: "Total errors, by component and operation",
			},
			[]string{"component", "operation"},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingest_service_info",
				Help: "Service build/environment information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.WSConnectionsActive,
			m.WSConnectAttempts,
			m.WSReconnectsTotal,
			m.WSHandshakeDuration,
			m.CircuitBreakerState,
			m.MessagesReceivedTotal,
			m.MessagesDroppedTotal,
			m.DispatchQueueDepth,
			m.SubscriptionConfirmTime,
			m.EventsEmittedTotal,
			m.ParseErrorsTotal,
			m.PriceUpdatesTotal,
			m.PriceResolveDuration,
			m.PriceCacheHitsTotal,
			m.ErrorsTotal,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

func (m *Metrics) RecordConnectAttempt(programID, outcome string) {
	m.WSConnectAttempts.WithLabelValues(programID, outcome).Inc()
}

func (m *Metrics) RecordReconnect(programID string) {
	m.WSReconnectsTotal.WithLabelValues(programID).Inc()
}

func (m *Metrics) SetConnectionActive(programID string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	m.WSConnectionsActive.WithLabelValues(programID).Set(v)
}

func (m *Metrics) RecordHandshakeDuration(programID string, d time.Duration) {
	m.WSHandshakeDuration.WithLabelValues(programID).Observe(d.Seconds())
}

// SetCircuitBreakerState records gobreaker's state as a numeric gauge
// (0=closed, 1=half-open, 2=open) for dashboards that can't render strings.
func (m *Metrics) SetCircuitBreakerState(programID string, state int) {
	m.CircuitBreakerState.WithLabelValues(programID).Set(float64(state))
}

func (m *Metrics) RecordMessageReceived(programID, frameKind string) {
	m.MessagesReceivedTotal.WithLabelValues(programID, frameKind).Inc()
}

func (m *Metrics) RecordMessageDropped(category, reason string) {
	m.MessagesDroppedTotal.WithLabelValues(category, reason).Inc()
}

func (m *Metrics) SetDispatchQueueDepth(programID string, depth int) {
	m.DispatchQueueDepth.WithLabelValues(programID).Set(float64(depth))
}

func (m *Metrics) RecordSubscriptionConfirm(programID, kind string, d time.Duration) {
	m.SubscriptionConfirmTime.WithLabelValues(programID, kind).Observe(d.Seconds())
}

func (m *Metrics) RecordEventEmitted(eventType, dexKind string) {
	m.EventsEmittedTotal.WithLabelValues(eventType, dexKind).Inc()
}

func (m *Metrics) RecordParseError(dexKind, stage string) {
	m.ParseErrorsTotal.WithLabelValues(dexKind, stage).Inc()
}

func (m *Metrics) RecordPriceUpdate(source string) {
	m.PriceUpdatesTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordPriceResolveDuration(source string, d time.Duration) {
	m.PriceResolveDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) RecordPriceCacheResult(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PriceCacheHitsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordError(component, operation string) {
	m.ErrorsTotal.WithLabelValues(component, operation).Inc()
}

func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
//   - production: disabled unless explicitly enabled via METRICS_ENABLED
//   - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance, initializing a fallback
// instance under the "unknown" service name if Init was never called.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
