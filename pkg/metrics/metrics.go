package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tick metrics
	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskcommander_tick_duration_seconds",
			Help:    "Time taken to process one Commander tick in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskcommander_ticks_total",
			Help: "Total number of Commander ticks processed",
		},
	)

	// Dispatch metrics
	TasksDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcommander_tasks_dispatched_total",
			Help: "Total number of task dispatches by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	DispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskcommander_dispatch_latency_seconds",
			Help:    "Time taken to dispatch a single task in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// Reap metrics
	ContainersReapedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcommander_containers_reaped_total",
			Help: "Total number of containers reaped by outcome",
		},
		[]string{"outcome"},
	)

	RunningContainers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskcommander_running_containers",
			Help: "Current number of containers registered as running",
		},
	)

	// Image build metrics
	ImageBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcommander_image_builds_total",
			Help: "Total number of image build attempts by outcome",
		},
		[]string{"outcome"},
	)

	ImageBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskcommander_image_build_duration_seconds",
			Help:    "Time taken to build a task image in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Cleaner metrics
	CleanupCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskcommander_cleanup_cycles_total",
			Help: "Total number of cleaner invocations (orphan reclaim or shutdown stop)",
		},
	)

	ContainersCleanedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcommander_containers_cleaned_total",
			Help: "Total number of containers removed by the cleaner, by reason",
		},
		[]string{"reason"},
	)

	// Output sink metrics
	ArtifactReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcommander_artifact_reads_total",
			Help: "Total number of output sink reads by artifact kind and outcome",
		},
		[]string{"artifact", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(TickDuration)
	prometheus.MustRegister(TicksTotal)
	prometheus.MustRegister(TasksDispatchedTotal)
	prometheus.MustRegister(DispatchLatency)
	prometheus.MustRegister(ContainersReapedTotal)
	prometheus.MustRegister(RunningContainers)
	prometheus.MustRegister(ImageBuildsTotal)
	prometheus.MustRegister(ImageBuildDuration)
	prometheus.MustRegister(CleanupCyclesTotal)
	prometheus.MustRegister(ContainersCleanedTotal)
	prometheus.MustRegister(ArtifactReadsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
