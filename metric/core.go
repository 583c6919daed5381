package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "e2t"

// Metrics are the pipeline-wide counters shared by every component
type Metrics struct {
	MessagesReceived   *prometheus.CounterVec
	RecordsEmitted     *prometheus.CounterVec
	RecordsPersisted   *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	DuplicatesSkipped  prometheus.Counter
	ProcessingDuration *prometheus.HistogramVec

	NATSConnected  prometheus.Gauge
	NATSRTT        prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates the pipeline metrics, unregistered
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "messages", Name: "received_total",
			Help: "Messages received, by component and publisher",
		}, []string{"component", "publisher"}),

		RecordsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "records", Name: "emitted_total",
			Help: "Time-series records produced by extraction",
		}, []string{"component", "publisher"}),

		RecordsPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "records", Name: "persisted_total",
			Help: "Records written by an output, by target column",
		}, []string{"component", "column"}),

		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "errors", Name: "total",
			Help: "Errors by component and class (transient, invalid, fatal)",
		}, []string{"component", "class"}),

		DuplicatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "vehicle", Name: "duplicates_total",
			Help: "Vehicle snapshots skipped because their version was already processed",
		}),

		ProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "processing", Name: "duration_seconds",
			Help:    "Time spent handling one inbound message",
			Buckets: prometheus.DefBuckets,
		}, []string{"component"}),

		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "nats", Name: "connected",
			Help: "NATS connection status (0=disconnected, 1=connected)",
		}),

		NATSRTT: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "nats", Name: "rtt_milliseconds",
			Help: "NATS round-trip time in milliseconds",
		}),

		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "nats", Name: "reconnects_total",
			Help: "NATS reconnections",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesReceived, m.RecordsEmitted, m.RecordsPersisted, m.ErrorsTotal,
		m.DuplicatesSkipped, m.ProcessingDuration,
		m.NATSConnected, m.NATSRTT, m.NATSReconnects,
	}
}

// The Record helpers are nil-safe so components can run without metrics.

func (m *Metrics) RecordReceived(component, publisher string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(component, publisher).Inc()
}

func (m *Metrics) RecordEmitted(component, publisher string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsEmitted.WithLabelValues(component, publisher).Add(float64(n))
}

func (m *Metrics) RecordPersisted(component, column string) {
	if m == nil {
		return
	}
	m.RecordsPersisted.WithLabelValues(component, column).Inc()
}

func (m *Metrics) RecordError(component, class string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, class).Inc()
}

func (m *Metrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.DuplicatesSkipped.Inc()
}

func (m *Metrics) RecordDuration(component string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProcessingDuration.WithLabelValues(component).Observe(d.Seconds())
}

func (m *Metrics) RecordNATSStatus(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.NATSConnected.Set(1)
	} else {
		m.NATSConnected.Set(0)
	}
}

func (m *Metrics) RecordNATSRTT(rtt time.Duration) {
	if m == nil {
		return
	}
	m.NATSRTT.Set(float64(rtt.Microseconds()) / 1000)
}

func (m *Metrics) RecordNATSReconnect() {
	if m == nil {
		return
	}
	m.NATSReconnects.Inc()
}
