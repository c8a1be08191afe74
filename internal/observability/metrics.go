package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports the recorder's degraded-status counters as Prometheus
// instrumentation, additive to the plain-struct DegradedStatus counters.
type Metrics struct {
	dropped   prometheus.Counter
	failed    prometheus.Counter
	queueSize prometheus.Gauge
}

// NewMetrics registers the recorder's counters and gauge against reg. A nil
// reg skips registration; the metrics are still created and updated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "executiond",
			Subsystem: "observability",
			Name:      "records_dropped_total",
			Help:      "Observability records dropped because the writer queue was full.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "executiond",
			Subsystem: "observability",
			Name:      "records_failed_total",
			Help:      "Observability records that failed to persist to the sink.",
		}),
		queueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "executiond",
			Subsystem: "observability",
			Name:      "queue_depth",
			Help:      "Current depth of the observability recorder's pending-write queue.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.dropped, m.failed, m.queueSize)
	}
	return m
}

func (m *Metrics) IncDropped() { m.dropped.Inc() }
func (m *Metrics) IncFailed()  { m.failed.Inc() }
func (m *Metrics) SetQueueDepth(n int) {
	m.queueSize.Set(float64(n))
}
