package troubleshoot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracelens",
		Subsystem: "analysis",
		Name:      "requests_total",
		Help:      "Analysis requests by outcome.",
	}, []string{"outcome"})

	rejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracelens",
		Subsystem: "analysis",
		Name:      "rejections_total",
		Help:      "Rejected traces by reason.",
	}, []string{"reason"})

	stageFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracelens",
		Subsystem: "analysis",
		Name:      "stage_fallbacks_total",
		Help:      "Stages that failed and returned their fallback value.",
	}, []string{"stage"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tracelens",
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Time from validation to a finished record, excluding persistence.",
		Buckets:   prometheus.DefBuckets,
	})
)
