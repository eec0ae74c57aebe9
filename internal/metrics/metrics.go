// Package metrics exposes Prometheus collectors for the picker service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pickerCandidatesTotal        *prometheus.CounterVec
	pickerSearchesTotal          *prometheus.CounterVec
	pickerProductsTotal          *prometheus.CounterVec
	pickerActiveWorkers          prometheus.Gauge
	pickerRateLimitDelaySeconds  *prometheus.HistogramVec
	pickerSelectionDurationSecs  prometheus.Histogram
	pickerCheckFailuresTotal     *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pickerCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "picker_candidates_total",
				Help: "Total number of candidates evaluated, labeled by result.",
			},
			[]string{"result"},
		)

		pickerSearchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "picker_searches_total",
				Help: "Total number of provider searches, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		pickerProductsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "picker_products_total",
				Help: "Total number of products reaching a workflow status.",
			},
			[]string{"status"},
		)

		pickerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "picker_active_workers",
				Help: "Number of workers currently processing a product.",
			},
		)

		pickerRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "picker_rate_limit_delay_seconds",
				Help:    "Histogram of provider rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		)

		pickerSelectionDurationSecs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "picker_selection_duration_seconds",
				Help:    "Histogram of end-to-end candidate selection latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		pickerCheckFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "picker_check_failures_total",
				Help: "Total failed quality checks, labeled by check name.",
			},
			[]string{"check"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCandidate increments the candidate counter for the given result
// ("passed", "rejected", "fetch_error", "duplicate").
func ObserveCandidate(result string) {
	if pickerCandidatesTotal == nil {
		return
	}
	pickerCandidatesTotal.WithLabelValues(result).Inc()
}

// ObserveSearch increments the search counter for a provider/outcome pair.
func ObserveSearch(provider, outcome string) {
	if pickerSearchesTotal == nil {
		return
	}
	pickerSearchesTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveProduct increments the product status counter.
func ObserveProduct(status string) {
	if pickerProductsTotal == nil {
		return
	}
	pickerProductsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if pickerActiveWorkers == nil {
		return
	}
	pickerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if pickerActiveWorkers == nil {
		return
	}
	pickerActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(provider string, duration time.Duration) {
	if pickerRateLimitDelaySeconds == nil {
		return
	}
	pickerRateLimitDelaySeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveSelectionDuration records one selection pass latency.
func ObserveSelectionDuration(duration time.Duration) {
	if pickerSelectionDurationSecs == nil {
		return
	}
	pickerSelectionDurationSecs.Observe(duration.Seconds())
}

// ObserveCheckFailure increments the failed check counter.
func ObserveCheckFailure(check string) {
	if pickerCheckFailuresTotal == nil {
		return
	}
	pickerCheckFailuresTotal.WithLabelValues(check).Inc()
}
