// Package metrics exports Prometheus instrumentation for the conversion
// service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the instrumentation hook consumed by the orchestrator and
// the API layer.
type Recorder interface {
	RecordConversion(engine, status string, seconds float64)
	RecordPages(outcome string, count int)
	RecordArtifactBytes(n int64)
}

// Collector implements Recorder on a dedicated Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	conversions   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	pages         *prometheus.CounterVec
	artifactBytes prometheus.Histogram
}

// NewCollector creates and registers the service collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cubby_conversions_total",
				Help: "Total conversion jobs by engine and outcome",
			},
			[]string{"engine", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cubby_conversion_duration_seconds",
				Help:    "End-to-end conversion duration",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"engine"},
		),
		pages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cubby_pages_total",
				Help: "Pages processed by per-page engines, by outcome",
			},
			[]string{"outcome"},
		),
		artifactBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cubby_artifact_bytes",
				Help:    "Size of finished MusicXML artifacts",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
	}

	c.registry.MustRegister(c.conversions, c.duration, c.pages, c.artifactBytes)
	return c
}

// RecordConversion counts one finished job and observes its duration.
func (c *Collector) RecordConversion(engine, status string, seconds float64) {
	c.conversions.WithLabelValues(engine, status).Inc()
	if status == "success" {
		c.duration.WithLabelValues(engine).Observe(seconds)
	}
}

// RecordPages counts per-page outcomes ("converted", "skipped").
func (c *Collector) RecordPages(outcome string, count int) {
	if count > 0 {
		c.pages.WithLabelValues(outcome).Add(float64(count))
	}
}

// RecordArtifactBytes observes the size of a finished artifact.
func (c *Collector) RecordArtifactBytes(n int64) {
	c.artifactBytes.Observe(float64(n))
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Nop is a Recorder that drops everything; used where instrumentation
// is not wired up, such as tests.
type Nop struct{}

func (Nop) RecordConversion(string, string, float64) {}
func (Nop) RecordPages(string, int)                  {}
func (Nop) RecordArtifactBytes(int64)                {}
