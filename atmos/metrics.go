// atmos/metrics.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package atmos

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fault kinds used as the "kind" label of atmos_modifier_faults_total.
const (
	FaultRuntime = "runtime"
	FaultNumeric = "numeric"
)

var (
	modifierFaultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atmos_modifier_faults_total",
			Help: "Modifier calls whose contribution was dropped, by fault kind.",
		},
		[]string{"kind"},
	)

	modifierPurgesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atmos_modifier_purges_total",
			Help: "Modifier registrations removed by purge.",
		},
	)

	initTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atmos_init_tasks_total",
			Help: "Asynchronous modifier initializations, by result.",
		},
		[]string{"result"},
	)

	initDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "atmos_init_duration_seconds",
			Help:    "Time spent in asynchronous modifier initialization.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)
)

func init() {
	prometheus.MustRegister(modifierFaultsTotal)
	prometheus.MustRegister(modifierPurgesTotal)
	prometheus.MustRegister(initTasksTotal)
	prometheus.MustRegister(initDurationSeconds)
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
