package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// indexEntries tracks the entry count of the active index.
	// Labels: backend (flat, chromem)
	indexEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tracelens",
			Subsystem: "index",
			Name:      "entries",
			Help:      "Number of entries in the active similarity index",
		},
		[]string{"backend"},
	)

	buildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tracelens",
			Subsystem: "index",
			Name:      "build_duration_seconds",
			Help:      "Duration of index builds in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"backend"},
	)

	// rebuildsTotal counts Holder rebuilds.
	// Labels: result (success, error)
	rebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tracelens",
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Total number of index rebuilds",
		},
		[]string{"result"},
	)
)
