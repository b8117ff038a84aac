// Package clipper provides the entry point for the clipper service.
//
// Clipper accepts video uploads, renders a reduced-resolution proxy of each
// one, and cuts named clips out of the original on request. All media work
// runs asynchronously in a worker pool; HTTP callers poll status endpoints.
//
// # Application Lifecycle
//
//  1. Configuration Loading: Reads environment variables and validates directories
//  2. Memory Configuration: Sets GOMEMLIMIT from MEMORY_LIMIT when GOMEMLIMIT is unset
//  3. Database Initialization: Opens the SQLite asset and clip store
//  4. Component Initialization:
//     - Prober and Invoker: ffprobe and ffmpeg behind configurable paths
//     - Thumbnailer: Clip poster frames scaled with imaging
//     - Queue: In-memory channel or Redis list of job descriptors
//     - Dispatcher: Worker pool running proxy and clip jobs, gated by the memory monitor
//     - Metrics Collector: Refreshes status gauges every minute
//  5. HTTP Server Setup: Routes, request id, logging and metrics middleware
//  6. Graceful Shutdown: Handles SIGINT/SIGTERM, drains workers and kills engine processes
//
// # Background Services
//
//   - Dispatcher workers: Pop jobs and run them under a per-job timeout
//   - Recovery: Re-queues unfinished work left by a previous process
//   - Retention sweep: Deletes expired records and their files every SWEEP_INTERVAL
//   - Memory monitor: Pauses job intake above the critical watermark
//
// The one-shot sweep in cmd/sweep shares the store and retention code.
package clipper
