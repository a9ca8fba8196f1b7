// Package metrics holds the prometheus collectors of the insight service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "heimdex_insight"

type Metrics struct {
	gatherer prometheus.Gatherer

	videosProcessed   *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	queueDepth        prometheus.Gauge
	analysisOrigin    *prometheus.CounterVec
	embeddingsDropped prometheus.Counter
	highlightRenders  *prometheus.CounterVec
}

// New registers the collectors on a fresh registry that also carries the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWith(reg, reg)
}

// NewWith registers the collectors on reg and serves them from gatherer.
func NewWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: gatherer,
		videosProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "videos_processed_total",
			Help:      "Videos that left the pipeline, by final status.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"stage"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Videos waiting in the processing queue.",
		}),
		analysisOrigin: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_documents_total",
			Help:      "Analysis documents by origin (model or fallback).",
		}, []string{"origin"}),
		embeddingsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embeddings_dropped_total",
			Help:      "Segments whose embedding could not be produced.",
		}),
		highlightRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "highlight_renders_total",
			Help:      "Highlight reel renders by outcome.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.videosProcessed,
		m.stageDuration,
		m.queueDepth,
		m.analysisOrigin,
		m.embeddingsDropped,
		m.highlightRenders,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) VideoProcessed(status string) {
	if m == nil {
		return
	}
	m.videosProcessed.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) AnalysisOrigin(origin string) {
	if m == nil {
		return
	}
	m.analysisOrigin.WithLabelValues(origin).Inc()
}

func (m *Metrics) EmbeddingsDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.embeddingsDropped.Add(float64(n))
}

func (m *Metrics) HighlightRender(status string) {
	if m == nil {
		return
	}
	m.highlightRenders.WithLabelValues(status).Inc()
}
