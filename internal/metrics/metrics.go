// Package metrics holds the Prometheus instruments updated by the
// reconciler and kernel actuator and served by the API layer's /metrics
// endpoint. All collectors register with
// the global registry on import, the way the teacher's metrics package
// registers the framework's tenant counters in its own init().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yanizio/routemgr/internal/route"
)

var (
	// RoutesByStatus reports the count of saved_routes rows per status in
	// the snapshot a reconciler sweep started from (before that sweep's
	// transitions), refreshed at the end of every sweep.
	RoutesByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "routemgr_routes",
			Help: "Number of routes currently in the store, by status.",
		},
		[]string{"status"},
	)

	// ReconcilerSweepDuration observes how long a full sweep took.
	ReconcilerSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "routemgr_reconciler_sweep_duration_seconds",
			Help:    "Duration of one reconciler sweep over the route store.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReconcilerActuatorErrors counts kernel calls that failed for a
	// reason other than an idempotency signal during a sweep.
	ReconcilerActuatorErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "routemgr_reconciler_actuator_errors_total",
			Help: "Cumulative kernel actuator failures observed during reconciler sweeps.",
		},
	)

	// KernelInstallTotal counts install() outcomes by result.
	KernelInstallTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routemgr_kernel_install_total",
			Help: "Cumulative kernel route installs, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		RoutesByStatus,
		ReconcilerSweepDuration,
		ReconcilerActuatorErrors,
		KernelInstallTotal,
	)
}

// RecordRouteCounts refreshes RoutesByStatus from a full snapshot of the
// store, resetting statuses with zero current records.
func RecordRouteCounts(records []route.Record) {
	counts := map[route.Status]int{
		route.StatusPending: 0,
		route.StatusActive:  0,
		route.StatusExpired: 0,
		route.StatusPaused:  0,
	}
	for _, r := range records {
		counts[r.Status]++
	}
	for status, n := range counts {
		RoutesByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}
