package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipper_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipper_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipper_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipper_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	// DBRecordsVanished counts read-modify-write attempts that found no record.
	DBRecordsVanished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_db_records_vanished_total",
			Help: "Total number of updates or deletes that found the record already gone",
		},
		[]string{"kind"}, // "asset", "clip"
	)
)

// Job metrics
var (
	JobsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_jobs_submitted_total",
			Help: "Total number of jobs submitted to the dispatcher",
		},
		[]string{"kind"},
	)

	JobSubmitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_job_submit_failures_total",
			Help: "Total number of job submissions the queue rejected",
		},
		[]string{"kind"},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_jobs_total",
			Help: "Total number of jobs finished by outcome",
		},
		[]string{"kind", "status"}, // status: completed, failed, vanished, skipped, duplicate, interrupted
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipper_job_duration_seconds",
			Help:    "Wall-clock job duration in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"kind"},
	)

	JobsInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clipper_jobs_in_progress",
			Help: "Number of jobs currently executing",
		},
		[]string{"kind"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipper_queue_depth",
			Help: "Number of job descriptors waiting in the queue",
		},
	)
)

// Engine metrics
var (
	ProbeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_probe_total",
			Help: "Total number of ffprobe invocations by result",
		},
		[]string{"result"}, // "success", "no_video_stream", "invalid"
	)

	ProbeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clipper_probe_duration_seconds",
			Help:    "ffprobe invocation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	TranscodeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_transcode_total",
			Help: "Total number of ffmpeg invocations by operation and result",
		},
		[]string{"operation", "result"}, // result: "success", "engine_failed", "spawn_failed", "timeout"
	)

	TranscodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipper_transcode_duration_seconds",
			Help:    "ffmpeg invocation duration in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"operation"},
	)

	EngineProcessesRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipper_engine_processes_running",
			Help: "Number of ffmpeg/ffprobe subprocesses currently running",
		},
	)

	ThumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_thumbnails_total",
			Help: "Total number of clip poster thumbnails by result",
		},
		[]string{"result"},
	)
)

// Retention metrics
var (
	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_sweep_runs_total",
			Help: "Total number of retention sweeps",
		},
		[]string{"status"},
	)

	SweepDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_sweep_deleted_total",
			Help: "Total number of items removed by retention sweeps",
		},
		[]string{"type"}, // "file", "asset", "clip"
	)

	SweepErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipper_sweep_errors_total",
			Help: "Total number of per-record failures during retention sweeps",
		},
	)

	SweepLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipper_sweep_last_run_timestamp",
			Help: "Unix timestamp of the last retention sweep",
		},
	)

	SweepLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipper_sweep_last_run_duration_seconds",
			Help: "Duration of the last retention sweep in seconds",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipper_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_filesystem_retry_attempts_total",
			Help: "Total number of filesystem retries after a stale file handle",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipper_filesystem_stale_errors_total",
			Help: "Total number of ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipper_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory budget",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipper_memory_paused",
			Help: "Whether job intake is paused for memory pressure (1 = paused)",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipper_memory_pauses_total",
			Help: "Total number of times job intake paused for memory pressure",
		},
	)
)

// Library metrics
var (
	AssetsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clipper_assets",
			Help: "Number of asset records by status",
		},
		[]string{"status"},
	)

	ClipsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clipper_clips",
			Help: "Number of clip records by status",
		},
		[]string{"status"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clipper_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
