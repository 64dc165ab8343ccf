// Package metrics exposes extraction and storage counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives extraction, cache and retention events.
type Recorder interface {
	IncAttempt(platform, strategy, outcome string)
	ObserveExtraction(platform, outcome string, durationSeconds float64)
	IncCache(result string)
	IncQuotaDenied()
	AddSwept(files int, bytes uint64)
}

// Noop implements Recorder without emitting anything.
type Noop struct{}

func (Noop) IncAttempt(string, string, string)         {}
func (Noop) ObserveExtraction(string, string, float64) {}
func (Noop) IncCache(string)                           {}
func (Noop) IncQuotaDenied()                           {}
func (Noop) AddSwept(int, uint64)                      {}

// Prom implements Recorder backed by Prometheus collectors.
type Prom struct {
	attempts    *prometheus.CounterVec
	extractions *prometheus.HistogramVec
	cache       *prometheus.CounterVec
	quotaDenied prometheus.Counter
	sweptFiles  prometheus.Counter
	sweptBytes  prometheus.Counter
}

// NewProm creates the collectors and registers them with reg. A nil reg
// means the default registerer.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	p := &Prom{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_attempts_total",
			Help:      "Extraction strategy attempts by platform, strategy and outcome",
		}, []string{"platform", "strategy", "outcome"}),
		extractions: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Duration of whole extraction chains",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 180, 360},
		}, []string{"platform", "outcome"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Artifact store lookups by result",
		}, []string{"result"}),
		quotaDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denied_total",
			Help:      "Artifacts discarded because admission was denied",
		}),
		sweptFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_files_total",
			Help:      "Files removed by the retention sweeper",
		}),
		sweptBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_bytes_total",
			Help:      "Bytes freed by the retention sweeper",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(p.attempts, p.extractions, p.cache, p.quotaDenied, p.sweptFiles, p.sweptBytes)
	return p
}

func (p *Prom) IncAttempt(platform, strategy, outcome string) {
	p.attempts.WithLabelValues(platform, strategy, outcome).Inc()
}

func (p *Prom) ObserveExtraction(platform, outcome string, durationSeconds float64) {
	p.extractions.WithLabelValues(platform, outcome).Observe(durationSeconds)
}

func (p *Prom) IncCache(result string) {
	p.cache.WithLabelValues(result).Inc()
}

func (p *Prom) IncQuotaDenied() {
	p.quotaDenied.Inc()
}

func (p *Prom) AddSwept(files int, bytes uint64) {
	p.sweptFiles.Add(float64(files))
	p.sweptBytes.Add(float64(bytes))
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
