package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	extractAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routesort",
			Name:      "extract_attempts_total",
			Help:      "Page text extraction attempts by strategy and result (ok, insufficient, error, unavailable)",
		},
		[]string{"strategy", "result"},
	)

	pagesClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routesort",
			Name:      "pages_classified_total",
			Help:      "Pages classified by outcome (matched, unrecognized, unresolved, failed)",
		},
		[]string{"outcome"},
	)

	recognizedByRule = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routesort",
			Name:      "identifiers_recognized_total",
			Help:      "Identifiers recognized by the rule that matched",
		},
		[]string{"rule"},
	)

	partitionsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routesort",
			Name:      "partitions_written_total",
			Help:      "Partition files written by result",
		},
		[]string{"result"},
	)

	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routesort",
			Name:      "runs_total",
			Help:      "Sorting runs by result (success, partial, cancelled, fatal_config, failed)",
		},
		[]string{"result"},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "routesort",
			Name:      "run_duration_seconds",
			Help:      "Duration of sorting runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "routesort",
			Name:      "queue_depth",
			Help:      "Pending sort jobs in the queue stream",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(extractAttempts, pagesClassified, recognizedByRule, partitionsWritten, runs, runDuration, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveExtraction(strategy, result string) { extractAttempts.WithLabelValues(strategy, result).Inc() }
func IncPage(outcome string) { pagesClassified.WithLabelValues(outcome).Inc() }
func IncRecognized(rule string) { recognizedByRule.WithLabelValues(rule).Inc() }
func IncPartition(result string) { partitionsWritten.WithLabelValues(result).Inc() }
func SetQueueDepth(v int64) { queueDepth.Set(float64(v)) }

func ObserveRun(result string, dur time.Duration) {
	runs.WithLabelValues(result).Inc()
	runDuration.Observe(dur.Seconds())
}
