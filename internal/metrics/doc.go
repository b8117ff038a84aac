// Package metrics provides Prometheus instrumentation for the clipper service.
//
// All metrics are registered with the default registry through promauto and
// are prefixed with "clipper_". Mount promhttp.Handler() to expose them.
//
// # Metric Categories
//
// Jobs: submissions, submit failures, outcomes by kind (proxy, clip) and
// status, duration, in-progress gauge, queue depth.
//
// Engine: ffprobe results and duration, ffmpeg results per operation
// (proxy, clip, frame), running subprocess gauge, poster thumbnails.
//
// Retention: sweep runs, deleted files/assets/clips, per-record errors, last
// run timestamp and duration.
//
// Database and filesystem: query totals and latency, vanished records,
// operation latency and ESTALE retry counters per volume.
//
// Library: asset and clip counts by status, refreshed by Collector.
package metrics
