package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the aggregator's operational counters for Prometheus
// scraping.
type Metrics struct {
	cyclesRun       prometheus.Counter
	cyclesFailed    prometheus.Counter
	eventsProcessed prometheus.Counter
	batchesRequeued prometheus.Counter
	abuseDetected   *prometheus.CounterVec
	lastBatchSize   prometheus.Gauge
	cycleDuration   prometheus.Histogram
}

// NewMetrics registers the aggregator metrics on reg and returns the
// collector. A nil registerer yields metrics that are recorded but
// never exposed, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cyclesRun: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analytics_cycles_total",
			Help: "Total number of drain cycles run.",
		}),
		cyclesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analytics_cycles_failed_total",
			Help: "Drain cycles that rolled back and requeued their batch.",
		}),
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analytics_events_processed_total",
			Help: "Access events committed to the aggregate tables.",
		}),
		batchesRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analytics_batches_requeued_total",
			Help: "Failed batches pushed back onto the event queue.",
		}),
		abuseDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_abuse_events_total",
			Help: "Abuse detections by event type.",
		}, []string{"event_type"}),
		lastBatchSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analytics_last_batch_size",
			Help: "Number of events in the most recent drained batch.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analytics_cycle_duration_seconds",
			Help:    "Drain cycle latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.cyclesRun,
			m.cyclesFailed,
			m.eventsProcessed,
			m.batchesRequeued,
			m.abuseDetected,
			m.lastBatchSize,
			m.cycleDuration,
		)
	}
	return m
}

func (m *Metrics) recordCycle(processed int, d time.Duration, failed bool) {
	m.cyclesRun.Inc()
	m.lastBatchSize.Set(float64(processed))
	m.cycleDuration.Observe(d.Seconds())
	if failed {
		m.cyclesFailed.Inc()
		m.batchesRequeued.Inc()
		return
	}
	m.eventsProcessed.Add(float64(processed))
}

func (m *Metrics) recordAbuse(eventType string) {
	m.abuseDetected.WithLabelValues(eventType).Inc()
}
