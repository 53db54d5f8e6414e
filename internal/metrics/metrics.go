package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buildFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngbundle_build_failed_total",
			Help: "Number of times a library build has failed",
		},
		[]string{"package", "stage"},
	)

	buildCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngbundle_build_count_total",
			Help: "Total number of library builds that completed",
		},
		[]string{"package"},
	)

	buildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ngbundle_build_duration_seconds",
			Help:    "Library build duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
		[]string{"package"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ngbundle_stage_duration_seconds",
			Help:    "Duration of a single build stage in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"package", "stage"},
	)

	bundleSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ngbundle_bundle_size_bytes",
			Help: "Size of the last produced bundle variant in bytes",
		},
		[]string{"package", "variant"},
	)

	lastBuildEnd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ngbundle_last_build_end_timestamp",
			Help: "Unix timestamp of when the last build ended",
		},
		[]string{"package"},
	)
)

func BuildSucceeded(pkg string, startTime time.Time) {
	buildCount.WithLabelValues(pkg).Inc()
	buildDuration.WithLabelValues(pkg).Observe(time.Since(startTime).Seconds())
	lastBuildEnd.WithLabelValues(pkg).SetToCurrentTime()
}

func BuildFailed(pkg, stage string) {
	buildFailed.WithLabelValues(pkg, stage).Inc()
	lastBuildEnd.WithLabelValues(pkg).SetToCurrentTime()
}

func StageCompleted(pkg, stage string, startTime time.Time) {
	stageDuration.WithLabelValues(pkg, stage).Observe(time.Since(startTime).Seconds())
}

func BundleSize(pkg, variant string, size int64) {
	bundleSize.WithLabelValues(pkg, variant).Set(float64(size))
}

// WriteTextfile writes every registered metric to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
