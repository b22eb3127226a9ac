package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_requests_total",
		Help: "Total number of requests inspected by Sentinel",
	})
	threatsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_threats_total",
		Help: "Requests matched against a threat category",
	}, []string{"category"})
	blockedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_blocked_total",
		Help: "Requests answered with a hard block, by reason",
	}, []string{"reason"})
	loggedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_logged_total",
		Help: "Matched requests that were logged but allowed through",
	})
	allowlistedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_allowlisted_total",
		Help: "Requests that skipped inspection because the client is allow-listed",
	})
	internalErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_internal_errors_total",
		Help: "Inspections that failed internally and were allowed through",
	})
	storageErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_storage_errors_total",
		Help: "Read or write failures on Sentinel's persisted records",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry prometheus.Registerer) {
	registry.MustRegister(
		requestsTotal,
		threatsTotal,
		blockedTotal,
		loggedTotal,
		allowlistedTotal,
		internalErrorsTotal,
		storageErrorsTotal,
	)
}

// IncRequest increments the inspected requests counter.
func IncRequest() { requestsTotal.Inc() }

// IncThreat counts a classification hit.
func IncThreat(category string) { threatsTotal.WithLabelValues(category).Inc() }

// IncBlocked counts a hard block.
func IncBlocked(reason string) { blockedTotal.WithLabelValues(reason).Inc() }

// IncLogged counts a LOG_ONLY verdict.
func IncLogged() { loggedTotal.Inc() }

// IncAllowlisted counts an allow-list short-circuit.
func IncAllowlisted() { allowlistedTotal.Inc() }

// IncInternalError counts a fail-open inspection.
func IncInternalError() { internalErrorsTotal.Inc() }

// IncStorageError counts a persisted record failure.
func IncStorageError() { storageErrorsTotal.Inc() }
