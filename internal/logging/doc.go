// Package logging provides the leveled logger used across the clipper
// service.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (ffmpeg argument lists, queue traffic)
//   - INFO: Job lifecycle transitions and sweep summaries
//   - WARN: Recoverable conditions such as a record vanishing mid-job
//   - ERROR: Failed jobs and failed persistence writes
//   - FATAL: Startup errors that terminate the process
//
// The level is read from LOG_LEVEL (or DEBUG=true) on first use and can be
// overridden with SetLevel.
package logging
