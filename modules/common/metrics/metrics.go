package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation kinds used as label values.
const (
	KindStoryboard = "storyboard"
	KindImage      = "image"
	KindVideo      = "video"
	KindEDL        = "edl"
)

// Metrics holds the server's collectors in a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	generations    *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	fallbacks      *prometheus.CounterVec
	recoveries     *prometheus.CounterVec
	activeSessions prometheus.Gauge
	queuedJobs     *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storyboard_generations_total",
				Help: "Generation calls by kind and outcome.",
			},
			[]string{"kind", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storyboard_generation_duration_seconds",
				Help:    "Wall time of generation calls, polling included.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"kind"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storyboard_video_fallbacks_total",
				Help: "Video generations that resolved to the demo clip, by failure kind.",
			},
			[]string{"reason"},
		),
		recoveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storyboard_credential_recoveries_total",
				Help: "Credential recovery attempts by outcome.",
			},
			[]string{"outcome"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "storyboard_active_sessions",
				Help: "Sessions currently held in memory.",
			},
		),
		queuedJobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storyboard_jobs_enqueued_total",
				Help: "Generation jobs handed to the dispatcher, by kind.",
			},
			[]string{"kind"},
		),
	}
}

// ObserveGeneration records one finished generation call.
func (m *Metrics) ObserveGeneration(kind, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(kind, status).Inc()
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// VideoFallback counts a demo-clip substitution.
func (m *Metrics) VideoFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

// CredentialRecovery counts an interactive credential attempt.
func (m *Metrics) CredentialRecovery(outcome string) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(outcome).Inc()
}

// SetActiveSessions updates the session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// JobEnqueued counts a dispatched job.
func (m *Metrics) JobEnqueued(kind string) {
	if m == nil {
		return
	}
	m.queuedJobs.WithLabelValues(kind).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
