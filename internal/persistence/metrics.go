package persistence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// remoteAvailable is 1 while the remote store is Available.
	remoteAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tracelens",
			Subsystem: "persistence",
			Name:      "remote_available",
			Help:      "Remote store health (1=available, 0=degraded)",
		},
	)

	// writesTotal counts record writes.
	// Labels: target (local, remote), result (success, error, skipped)
	writesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tracelens",
			Subsystem: "persistence",
			Name:      "writes_total",
			Help:      "Total number of analysis record writes",
		},
		[]string{"target", "result"},
	)

	// probesTotal counts remote store probes.
	// Labels: result (success, error)
	probesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tracelens",
			Subsystem: "persistence",
			Name:      "probes_total",
			Help:      "Total number of remote store probes",
		},
		[]string{"result"},
	)
)
