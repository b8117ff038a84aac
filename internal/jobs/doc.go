// Package jobs runs the asynchronous media pipelines.
//
// A Dispatcher pulls job descriptors off a queue.Queue and runs them on a
// fixed pool of workers:
//
//   - ProxyJob: probe the original, derive the proxy geometry, transcode the
//     proxy rendition and mark the asset completed.
//   - ClipJob: validate the in/out window, stream-copy the extract, render an
//     optional poster and mark the clip completed.
//
// Submission is fire-and-forget. Every pipeline error ends in a failed
// status with a human-readable error detail; nothing is returned to the
// submitter and nothing is retried. A record deleted while its job runs
// ends the job quietly.
//
// At most one job per record runs at a time. A descriptor whose record is
// already owned by a running job is dropped. Proxy and clip jobs for the
// same asset do not conflict.
package jobs
