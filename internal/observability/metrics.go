// Package observability exposes Prometheus metrics for the monitoring
// backend.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the Prometheus metrics for the cough monitoring
// pipeline.
type Metrics struct {
	registry *prometheus.Registry

	coughSubmissions      *prometheus.CounterVec
	detectionsCompleted   *prometheus.CounterVec
	notificationsCreated  prometheus.Counter
	notificationsAcked    prometheus.Counter
	classifierDispatches  *prometheus.CounterVec
	busDroppedMessages    prometheus.Counter
	sseClients            prometheus.Gauge
	devicesOnline         prometheus.Gauge

	collectors []prometheus.Collector
}

// NewMetrics creates the metric families and registers them with the
// given registry.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.coughSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coughwatch_cough_submissions_total",
			Help: "Total number of submitted cough recordings",
		},
		[]string{"source"},
	)

	m.detectionsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coughwatch_detections_completed_total",
			Help: "Total number of completed classifications by outcome",
		},
		[]string{"outcome"},
	)

	m.notificationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coughwatch_notifications_created_total",
			Help: "Total number of staff notifications created",
		},
	)

	m.notificationsAcked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coughwatch_notifications_acknowledged_total",
			Help: "Total number of acknowledged notifications",
		},
	)

	m.classifierDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coughwatch_classifier_dispatches_total",
			Help: "Total number of classifier dispatch attempts by result",
		},
		[]string{"result"},
	)

	m.busDroppedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coughwatch_bus_dropped_messages_total",
			Help: "Total number of event bus messages dropped",
		},
	)

	m.sseClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coughwatch_sse_clients",
			Help: "Number of connected SSE clients",
		},
	)

	m.devicesOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coughwatch_devices_online",
			Help: "Number of devices currently marked ONLINE",
		},
	)

	m.collectors = []prometheus.Collector{
		m.coughSubmissions,
		m.detectionsCompleted,
		m.notificationsCreated,
		m.notificationsAcked,
		m.classifierDispatches,
		m.busDroppedMessages,
		m.sseClients,
		m.devicesOnline,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordSubmission counts a submitted recording. source is "device" or
// "user".
func (m *Metrics) RecordSubmission(source string) {
	m.coughSubmissions.WithLabelValues(source).Inc()
}

// RecordDetection counts a completed classification by final status.
func (m *Metrics) RecordDetection(outcome string) {
	m.detectionsCompleted.WithLabelValues(outcome).Inc()
}

// RecordNotificationCreated counts a created notification.
func (m *Metrics) RecordNotificationCreated() {
	m.notificationsCreated.Inc()
}

// RecordNotificationAcknowledged counts an acknowledged notification.
func (m *Metrics) RecordNotificationAcknowledged() {
	m.notificationsAcked.Inc()
}

// RecordDispatch counts a classifier dispatch attempt. result is
// "enqueued", "dropped", "completed" or "failed".
func (m *Metrics) RecordDispatch(result string) {
	m.classifierDispatches.WithLabelValues(result).Inc()
}

// RecordBusDrop counts a dropped event bus message.
func (m *Metrics) RecordBusDrop() {
	m.busDroppedMessages.Inc()
}

// SetSSEClients records the current SSE client count.
func (m *Metrics) SetSSEClients(n int) {
	m.sseClients.Set(float64(n))
}

// SetDevicesOnline records the current ONLINE device count.
func (m *Metrics) SetDevicesOnline(n int64) {
	m.devicesOnline.Set(float64(n))
}
