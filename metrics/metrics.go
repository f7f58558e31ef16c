package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// GeneratedTotal counts report generations by outcome.
	GeneratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pgr",
		Subsystem: "report",
		Name:      "generated_total",
		Help:      "Total number of PGR report generations, labeled by result (ok, validation_error, error).",
	}, []string{"result"})

	// GenerationDurationSeconds is end-to-end time to assemble one PDF.
	GenerationDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pgr",
		Subsystem: "report",
		Name:      "generation_duration_seconds",
		Help:      "End-to-end time to generate a PGR checklist PDF.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
	})

	// ImagesFetchedTotal counts image fetch attempts by source and result.
	ImagesFetchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pgr",
		Subsystem: "report",
		Name:      "images_fetched_total",
		Help:      "Total number of image fetch attempts, labeled by source (blob, gcs_url, http) and result (ok, miss, error).",
	}, []string{"source", "result"})

	// ImagesDroppedTotal counts images dropped after fetch by reason.
	ImagesDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pgr",
		Subsystem: "report",
		Name:      "images_dropped_total",
		Help:      "Total number of fetched images dropped before placement (decode, encode, oversize).",
	}, []string{"reason"})
)

// Register registers all collectors exactly once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			GeneratedTotal,
			GenerationDurationSeconds,
			ImagesFetchedTotal,
			ImagesDroppedTotal,
		)
	})
}
