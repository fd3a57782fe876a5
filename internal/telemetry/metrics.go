package telemetry

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamvision/pkg/models"
)

// Metrics is a fixed set of Prometheus collectors covering the
// operations named by the module: segment outcomes, queue depth,
// broadcast drops and capability latency. Unlike the dynamic
// runtime-registered provider this is grounded on, the collector set
// here is closed at construction time — the module has a known,
// enumerable set of capabilities and outcomes, so there is no runtime
// cardinality to police.
type Metrics struct {
	reg *prom.Registry

	SegmentsProcessed *prom.CounterVec // labels: capability, outcome
	CapabilityLatency *prom.HistogramVec // labels: capability
	QueueDepth        prom.Gauge
	BroadcastDrops    prom.Counter
	DuplicateSkips    *prom.CounterVec // labels: capability
}

// NewMetrics builds and registers the fixed collector set on its own registry.
func NewMetrics() *Metrics {
	reg := prom.NewRegistry()

	m := &Metrics{
		reg: reg,
		SegmentsProcessed: prom.NewCounterVec(prom.CounterOpts{
			Name: "streamvision_segments_processed_total",
			Help: "Segment analyses persisted, by capability and outcome; the worker pool records outcome \"ok\".",
		}, []string{"capability", "outcome"}),
		CapabilityLatency: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "streamvision_capability_duration_seconds",
			Help:    "Wall time spent analyzing a single capability's frame or segment.",
			Buckets: prom.DefBuckets,
		}, []string{"capability"}),
		QueueDepth: prom.NewGauge(prom.GaugeOpts{
			Name: "streamvision_queue_depth",
			Help: "Number of segment events currently queued or leased.",
		}),
		BroadcastDrops: prom.NewCounter(prom.CounterOpts{
			Name: "streamvision_broadcast_drops_total",
			Help: "Subscribers dropped because their send buffer was full.",
		}),
		DuplicateSkips: prom.NewCounterVec(prom.CounterOpts{
			Name: "streamvision_duplicate_analyses_skipped_total",
			Help: "Analyses skipped because a prior delivery already recorded the same stream/segment/capability.",
		}, []string{"capability"}),
	}

	reg.MustRegister(m.SegmentsProcessed, m.CapabilityLatency, m.QueueDepth, m.BroadcastDrops, m.DuplicateSkips)
	return m
}

// Handler exposes the registry for an HTTP /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveOutcome(capability models.Capability, outcome string) {
	m.SegmentsProcessed.WithLabelValues(string(capability), outcome).Inc()
}

func (m *Metrics) ObserveDuplicateSkip(capability models.Capability) {
	m.DuplicateSkips.WithLabelValues(string(capability)).Inc()
}

func (m *Metrics) ObserveLatency(capability models.Capability, seconds float64) {
	m.CapabilityLatency.WithLabelValues(string(capability)).Observe(seconds)
}

func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) IncBroadcastDrop() {
	m.BroadcastDrops.Inc()
}
