// Package metrics owns the Prometheus collectors for the gate engine. A nil
// *Metrics is valid and records nothing, so tests can leave it out.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campusgate"

type Metrics struct {
	decisions         *prometheus.CounterVec
	violations        *prometheus.CounterVec
	vehicleAlerts     *prometheus.CounterVec
	observers         prometheus.Gauge
	observersDropped  prometheus.Counter
	framesDelivered   prometheus.Counter
	writerQueueWait   prometheus.Histogram
	accessLogFailures prometheus.Counter
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Access decisions by operation and outcome",
		}, []string{"operation", "outcome"}),
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Violations recorded by type",
		}, []string{"type"}),
		vehicleAlerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vehicle_alerts_total",
			Help:      "Vehicle alerts recorded by type",
		}, []string{"type"}),
		observers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_observers",
			Help:      "Live alert observers",
		}),
		observersDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_observers_dropped_total",
			Help:      "Observers removed after a failed delivery",
		}),
		framesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_frames_delivered_total",
			Help:      "Alert frames handed to observers",
		}),
		writerQueueWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_writer_queue_wait_seconds",
			Help:      "Time write jobs wait before their transaction starts",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		accessLogFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_log_failures_total",
			Help:      "Access log writes that failed and were skipped",
		}),
	}
}

func (m *Metrics) Decision(operation, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) Violation(violationType string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(violationType).Inc()
}

func (m *Metrics) VehicleAlert(alertType string) {
	if m == nil {
		return
	}
	m.vehicleAlerts.WithLabelValues(alertType).Inc()
}

func (m *Metrics) SetObservers(n int) {
	if m == nil {
		return
	}
	m.observers.Set(float64(n))
}

func (m *Metrics) ObserverDropped() {
	if m == nil {
		return
	}
	m.observersDropped.Inc()
}

func (m *Metrics) FrameDelivered() {
	if m == nil {
		return
	}
	m.framesDelivered.Inc()
}

func (m *Metrics) WriterQueueWait(d time.Duration) {
	if m == nil {
		return
	}
	m.writerQueueWait.Observe(d.Seconds())
}

func (m *Metrics) AccessLogFailure() {
	if m == nil {
		return
	}
	m.accessLogFailures.Inc()
}
