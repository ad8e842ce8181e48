package server

import "github.com/VictoriaMetrics/metrics"

// Request counters, exposed through the metrics endpoint alongside the lock
// lifecycle metrics of the locker package.
var (
	metricsLockCalls    = metrics.NewCounter(`ordered_lock_requests_total{method="lock"}`)
	metricsExtendCalls  = metrics.NewCounter(`ordered_lock_requests_total{method="extend-lock"}`)
	metricsReleaseCalls = metrics.NewCounter(`ordered_lock_requests_total{method="release-lock"}`)
	metricsInvalid      = metrics.NewCounter(`ordered_lock_invalid_requests_total`)
)
