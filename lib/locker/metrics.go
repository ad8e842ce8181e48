package locker

import "github.com/VictoriaMetrics/metrics"

// Lock lifecycle metrics, exposed through the server's metrics endpoint.
var (
	metricsAcquired  = metrics.NewCounter(`ordered_lock_locks_acquired_total`)
	metricsReleased  = metrics.NewCounter(`ordered_lock_locks_released_total`)
	metricsExpired   = metrics.NewCounter(`ordered_lock_locks_expired_total`)
	metricsExtended  = metrics.NewCounter(`ordered_lock_locks_extended_total`)
	metricsTimedOut  = metrics.NewCounter(`ordered_lock_acquisitions_timed_out_total`)
	metricsCancelled = metrics.NewCounter(`ordered_lock_acquisitions_cancelled_total`)

	// Current counts, maintained with Inc/Dec pairs.
	metricsHeld    = metrics.NewCounter(`ordered_lock_locks_held`)
	metricsWaiting = metrics.NewCounter(`ordered_lock_acquisitions_waiting`)
)
