// Package metrics exposes Prometheus instruments for investigations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/provider-risk/internal/model"
)

const namespace = "provider_risk"

// Cache lookup outcomes.
const (
	CacheMemo  = "memo"
	CacheStore = "store"
	CacheMiss  = "miss"
)

// Recorder owns the instruments. A nil *Recorder is a no-op, so callers that
// do not care about metrics can pass nil.
type Recorder struct {
	registry *prometheus.Registry

	investigations *prometheus.CounterVec
	scores         prometheus.Histogram
	duration       prometheus.Histogram
	sourceFailures *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
}

// New creates a Recorder on a fresh registry that also carries the Go and
// process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,

		// Labels: priority (low, medium, high)
		investigations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "investigations_total",
			Help:      "Completed investigations by priority tier",
		}, []string{"priority"}),

		scores: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of final risk scores",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),

		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "investigation_duration_seconds",
			Help:      "End-to-end investigation latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),

		// Labels: source, kind (transient, permanent)
		sourceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Upstream source fetches that failed after retries",
		}, []string{"source", "kind"}),

		// Labels: source, result (memo, store, miss)
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_cache_lookups_total",
			Help:      "Source payload cache lookups by outcome",
		}, []string{"source", "result"}),
	}
}

// Registry returns the registry the instruments live on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveAssessment records a completed investigation.
func (r *Recorder) ObserveAssessment(a *model.RiskAssessment, took time.Duration) {
	if r == nil || a == nil {
		return
	}
	r.investigations.WithLabelValues(string(a.Priority)).Inc()
	r.scores.Observe(float64(a.RiskScore))
	r.duration.Observe(took.Seconds())
}

// SourceFailed records a source that could not be fetched.
func (r *Recorder) SourceFailed(source model.Source, kind string) {
	if r == nil {
		return
	}
	r.sourceFailures.WithLabelValues(string(source), kind).Inc()
}

// CacheLookup records where a source payload came from.
func (r *Recorder) CacheLookup(source model.Source, result string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(string(source), result).Inc()
}
