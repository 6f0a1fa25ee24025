/*
Package metrics exposes Prometheus instrumentation for the task commander:
tick duration and count, dispatch outcomes by mode, reap outcomes, image
build attempts, cleaner activity, and output sink read outcomes.

Handler returns the standard promhttp handler for mounting at /metrics.
Timer is a small helper for recording histogram observations around a
block of code:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TickDuration)
*/
package metrics
