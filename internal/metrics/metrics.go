// Package metrics exposes Prometheus instrumentation for the dms service,
// its gateway calls and event delivery.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"dms/internal/dms"
	"dms/internal/events"
)

const namespace = "dms"

// Metrics holds every collector. It implements dms.Observer and
// events.Observer.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec   // dms_operations_total{op,result}, result is the error kind
	OperationDuration *prometheus.HistogramVec // dms_operation_duration_seconds{op}
	BatchItemsTotal   *prometheus.CounterVec   // dms_batch_items_total{op,result}, result is the error kind
	GatewayCallsTotal *prometheus.CounterVec   // dms_gateway_calls_total{call,result}
	GatewayDuration   *prometheus.HistogramVec // dms_gateway_call_duration_seconds{call}
	EventsDelivered   *prometheus.CounterVec   // dms_events_delivered_total{type,result}
	EventsDropped     *prometheus.CounterVec   // dms_events_dropped_total{type}
	BackgroundRuns    *prometheus.CounterVec   // dms_background_runs_total{job,result}
}

var (
	_ dms.Observer    = (*Metrics)(nil)
	_ events.Observer = (*Metrics)(nil)
)

// New registers the collectors with reg. A nil reg uses a fresh registry,
// which keeps tests independent of each other.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Service operations by name and error kind.",
		}, []string{"op", "result"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		BatchItemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Items processed by batch operations.",
		}, []string{"op", "result"}),
		GatewayCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_calls_total",
			Help:      "Storage gateway calls by kind and result.",
		}, []string{"call", "result"}),
		GatewayDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_call_duration_seconds",
			Help:      "Storage gateway call latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"call"}),
		EventsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Domain events handed to sinks.",
		}, []string{"type", "result"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Domain events dropped because the queue was full or closed.",
		}, []string{"type"}),
		BackgroundRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_runs_total",
			Help:      "Background job runs by job and result.",
		}, []string{"job", "result"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) OperationCompleted(op string, err error, elapsed time.Duration) {
	m.OperationsTotal.WithLabelValues(op, dms.ErrorKind(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) BatchItemCompleted(op string, err error) {
	m.BatchItemsTotal.WithLabelValues(op, dms.ErrorKind(err)).Inc()
}

func (m *Metrics) GatewayCallCompleted(call string, err error, elapsed time.Duration) {
	m.GatewayCallsTotal.WithLabelValues(call, result(err)).Inc()
	m.GatewayDuration.WithLabelValues(call).Observe(elapsed.Seconds())
}

func (m *Metrics) EventDelivered(t dms.EventType, err error) {
	m.EventsDelivered.WithLabelValues(string(t), result(err)).Inc()
}

func (m *Metrics) EventDropped(t dms.EventType) {
	m.EventsDropped.WithLabelValues(string(t)).Inc()
}

// BackgroundRun records one run of a background job such as "purge".
func (m *Metrics) BackgroundRun(job string, err error) {
	m.BackgroundRuns.WithLabelValues(job, result(err)).Inc()
}
