// Package memory keeps the Go heap inside a container's memory limit.
//
// Unlike GOMAXPROCS, which Go derives from cgroup CPU limits, GOMEMLIMIT must
// be set explicitly. [Configure] sets it to a share of the container limit,
// leaving the rest for the ffmpeg and ffprobe subprocesses the service spawns.
// An explicit GOMEMLIMIT in the environment always wins.
//
// A [Monitor] samples heap usage against that limit. Once usage crosses the
// critical mark it pauses: [Monitor.Wait] blocks until usage falls back below
// the high-water mark. Job workers call Wait before taking the next job, so a
// burst of poster decodes cannot push the process over its limit.
package memory
