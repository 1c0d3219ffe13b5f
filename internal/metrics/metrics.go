// Package metrics defines the Prometheus instrumentation for haven.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	CrisisDetections   *prometheus.CounterVec
	AlertAttempts      *prometheus.CounterVec
	SemanticScans      prometheus.Counter
	ScanDuration       prometheus.Histogram
	GenerationDuration prometheus.Histogram
	RetrievedPassages  prometheus.Histogram
}

// New creates all collectors and registers them on reg.
// Tests should pass prometheus.NewRegistry() to avoid duplicate
// registration across test cases.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CrisisDetections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_crisis_detections_total",
			Help: "Total number of crisis verdicts with detected=true",
		}, []string{"severity", "signal"}),
		AlertAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_alert_attempts_total",
			Help: "Total number of alert delivery attempts",
		}, []string{"channel", "outcome"}),
		SemanticScans: factory.NewCounter(prometheus.CounterOpts{
			Name: "haven_semantic_scans_total",
			Help: "Total number of semantic sliding-window scans executed",
		}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "haven_semantic_scan_duration_seconds",
			Help:    "Time taken to scan one message for crisis language",
			Buckets: prometheus.DefBuckets,
		}),
		GenerationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "haven_generation_duration_seconds",
			Help:    "Time taken for one model generation call including retries",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}),
		RetrievedPassages: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "haven_retrieved_passages",
			Help:    "Number of passages above the relevance floor per query",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		}),
	}
}
